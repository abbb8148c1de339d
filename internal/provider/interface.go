// Package provider defines the configuration and factory for selecting and
// constructing LLM backend implementations at runtime.
// Supported backends: Google Gemini, OpenAI (or any OpenAI-compatible
// endpoint), Ollama, and Volcano Engine Ark.
package provider

import "fmt"

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendOpenAI selects the OpenAI API or an OpenAI-compatible endpoint.
	BackendOpenAI Backend = "openai"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendArk selects Volcano Engine Ark.
	BackendArk Backend = "ark"
)

// ProviderGemini holds Google Gemini backend settings.
type ProviderGemini struct {
	// APIKey is the Google AI Studio API key.
	APIKey string
	// Model is the Gemini model name (e.g. "gemini-2.0-flash").
	Model string
}

// ProviderOpenAI holds OpenAI backend settings.
type ProviderOpenAI struct {
	// APIKey is the OpenAI (or compatible gateway) API key.
	APIKey string
	// Model is the model name (e.g. "gpt-4o", "gemini-2.0-flash").
	Model string
	// BaseURL overrides the default API endpoint. The original deployment
	// of this service pointed it at Gemini's OpenAI-compatible endpoint.
	BaseURL string
}

// ProviderOllama holds Ollama backend settings.
type ProviderOllama struct {
	// Host is the Ollama server base URL.
	Host string
	// Model is the Ollama model name.
	Model string
}

// ProviderArk holds Volcano Engine Ark backend settings.
type ProviderArk struct {
	// APIKey is the Ark API key.
	APIKey string
	// Model is the Ark endpoint/model identifier.
	Model string
}

// SharedTuning holds generation parameters common to all backends.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Gemini holds Gemini-specific settings.
	Gemini ProviderGemini
	// OpenAI holds OpenAI-specific settings.
	OpenAI ProviderOpenAI
	// Ollama holds Ollama-specific settings.
	Ollama ProviderOllama
	// Ark holds Ark-specific settings.
	Ark ProviderArk

	// Tuning holds shared generation parameters.
	Tuning SharedTuning
}

// Validate checks that the selected backend has the configuration it needs.
// Errors reference the env var the operator must set, so a misconfiguration
// is actionable at startup rather than cryptic on the first request.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GEMINI_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for ark backend")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for ark backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q — valid values: gemini, openai, ollama, ark", c.Backend)
	}
	return nil
}
