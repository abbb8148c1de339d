// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings. The Gemini implementation uses
// the official Google GenAI SDK; the OpenAI and Ollama implementations talk to
// their backends via plain HTTP.
package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiEmbedder implements rag.Embedder using the Google Gemini embedContent
// API. It is safe for concurrent use.
type GeminiEmbedder struct {
	// client is the shared GenAI client.
	client *genai.Client
	// model is the embedding model name (e.g. "text-embedding-004").
	model string
	// dimensions requests a specific output vector length (0 = model default).
	dimensions int
}

// GeminiConfig holds the settings for constructing a GeminiEmbedder.
type GeminiConfig struct {
	// APIKey is the Google AI Studio API key.
	APIKey string
	// Model is the embedding model name (e.g. "text-embedding-004").
	Model string
	// Dimensions requests a specific output vector length (0 = model default).
	Dimensions int
}

// NewGeminiEmbedder constructs a GeminiEmbedder from the given config.
func NewGeminiEmbedder(ctx context.Context, cfg *GeminiConfig) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: create client: %w", err)
	}
	return &GeminiEmbedder{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	var cfg *genai.EmbedContentConfig
	if e.dimensions > 0 {
		dims := int32(e.dimensions)
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dims}
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: embed request: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embedder: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	embeddings := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini embedder: empty embedding at index %d", i)
		}
		embeddings[i] = emb.Values
	}

	return embeddings, nil
}
