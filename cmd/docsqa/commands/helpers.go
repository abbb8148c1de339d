package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/chaicode/docsqa-go/internal/embedder"
	"github.com/chaicode/docsqa-go/internal/pipeline"
	"github.com/chaicode/docsqa-go/internal/provider"
	"github.com/chaicode/docsqa-go/internal/rag"
)

// buildVectorStore validates embedding configuration, constructs the embedder,
// and connects to Qdrant with a collection sized for the embedding backend.
// The caller owns the returned store and must Close it.
func buildVectorStore(ctx context.Context, log *slog.Logger) (rag.Embedder, *rag.QdrantStore, error) {
	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, nil, err
	}

	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("backend", embedder.ResolveBackend()))

	qdrantHost := getEnvOrDefault("QDRANT_HOST", "localhost")
	qdrantPort := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", rag.DefaultCollection)
	vectorSize := uint64(embedder.DefaultDimensions(embedder.ResolveBackend())) //nolint:gosec // dimensions are bounded

	store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       qdrantHost,
		Port:       qdrantPort,
		Collection: collection,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", qdrantHost, qdrantPort, err)
	}
	log.Info("qdrant store ready", slog.String("host", qdrantHost), slog.Int("port", qdrantPort), slog.String("collection", collection))

	return emb, store, nil
}

// buildPipeline wires the chat model, embedder, and vector store into the
// question-answering pipeline. The returned close func releases the Qdrant
// connection; the store is also returned so callers can probe its health.
func buildPipeline(ctx context.Context, log *slog.Logger) (*pipeline.Pipeline, *rag.QdrantStore, func(), error) {
	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("backend", string(providerCfg.Backend)))

	emb, store, err := buildVectorStore(ctx, log)
	if err != nil {
		return nil, nil, nil, err
	}

	retriever, err := rag.NewRetriever(emb, store, getEnvInt("RETRIEVAL_TOP_K", pipeline.DefaultTopK))
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	qa, err := pipeline.New(&pipeline.Config{
		ChatModel:        chatModel,
		Retriever:        retriever,
		TopK:             getEnvInt("RETRIEVAL_TOP_K", 0),
		ScoreThreshold:   getEnvFloat32("SCORE_THRESHOLD", 0),
		MaxContextTokens: getEnvInt("MAX_CONTEXT_TOKENS", 0),
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	return qa, store, func() { _ = store.Close() }, nil
}

// getEnvOrDefault returns the environment variable value or a fallback.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the environment variable parsed as an int, or fallback on
// absence or parse failure.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvFloat32 returns the environment variable parsed as a float32, or
// fallback on absence or parse failure.
func getEnvFloat32(key string, fallback float32) float32 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return fallback
	}
	return float32(f)
}
