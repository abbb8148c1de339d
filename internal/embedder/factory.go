package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/chaicode/docsqa-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultGeminiModel = "text-embedding-004"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultOllamaModel = "nomic-embed-text"

	// defaultGeminiDimensions is the output dimension of text-embedding-004.
	defaultGeminiDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ — override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
)

// DefaultDimensions returns the correct default embedding vector size for the
// given backend name. Callers that need to pre-configure a vector store (e.g.
// Qdrant collection creation) should use this rather than hardcoding a value.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "openai":
		return defaultOpenAIDimensions
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultGeminiDimensions
	}
}

// ResolveBackend returns the effective embedding backend name: explicit
// EMBEDDING_PROVIDER if set, otherwise the chat MODEL_PROVIDER when it can
// also embed, otherwise "gemini".
func ResolveBackend() string {
	if backend := getEnv("EMBEDDING_PROVIDER"); backend != "" {
		return backend
	}
	switch getEnv("MODEL_PROVIDER") {
	case "openai":
		return "openai"
	case "ollama":
		return "ollama"
	default:
		return "gemini"
	}
}

// NewFromEnv constructs a rag.Embedder using cascading defaults that inherit
// from the chat provider configuration when embedding-specific overrides are
// not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER — if unset, inherits MODEL_PROVIDER when it can
//     embed, otherwise "gemini"
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL — overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY — overrides the inherited API key
//  5. EMBEDDING_ENDPOINT — overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS — overrides the default dimensions
//     (gemini/ollama: 768, openai: 1536)
func NewFromEnv(ctx context.Context) (rag.Embedder, error) {
	backend := ResolveBackend()

	switch backend {
	case "gemini":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: gemini requires GEMINI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultGeminiModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		})

	case "openai":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		baseURL := getEnv("EMBEDDING_ENDPOINT")
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    baseURL,
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
		}), nil

	case "ollama":
		host := getEnv("EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: gemini, openai, ollama", backend)
	}
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
