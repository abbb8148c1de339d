package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If EMBEDDING_MODEL matches any
// of these, a warning is emitted so the operator knows they may have
// misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gemini-1",
	"gemini-2",
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// ValidateForRAG checks that the embedder configuration is usable. It returns
// an error if the configuration is clearly broken (e.g. gemini backend with no
// API key), and logs a warning if EMBEDDING_MODEL looks like a chat model
// rather than an embedding model.
//
// This is a pre-flight check — call it before constructing the embedder or
// the Qdrant store so operators get a clear error at startup rather than a
// cryptic failure during the first embed call.
func ValidateForRAG(log *slog.Logger) error {
	backend := ResolveBackend()

	// Warn when the embedding backend is inherited from the chat provider
	// with no explicit EMBEDDING_PROVIDER override — the operator may have
	// forgotten to set it.
	if os.Getenv("EMBEDDING_PROVIDER") == "" && os.Getenv("MODEL_PROVIDER") != "" {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set — deriving embedding backend from MODEL_PROVIDER",
			slog.String("backend", backend),
			slog.String("hint", "set EMBEDDING_PROVIDER=gemini (or openai/ollama) to be explicit"),
		)
	}

	// Validate backend-specific required config.
	switch backend {
	case "gemini":
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("embedder: no Gemini API key found — set GEMINI_API_KEY or EMBEDDING_API_KEY")
		}

	case "openai":
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return fmt.Errorf("embedder: no OpenAI API key found — set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}

	case "ollama":
		// Local backend — nothing to validate.

	default:
		return fmt.Errorf("embedder: unknown backend %q — valid values: gemini, openai, ollama", backend)
	}

	// Warn if EMBEDDING_MODEL looks like a chat model.
	model := os.Getenv("EMBEDDING_MODEL")
	if model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model — "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. text-embedding-004, nomic-embed-text"),
		)
	}

	return nil
}
