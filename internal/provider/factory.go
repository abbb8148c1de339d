package provider

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"
)

// ConfigFromEnv resolves provider configuration from environment variables.
// MODEL_PROVIDER selects the backend; each provider uses its own native
// credential env vars.
//
// Environment variables:
//
//	MODEL_PROVIDER  = gemini | openai | ollama | ark (default: gemini)
//
//	Gemini:  GEMINI_API_KEY, GEMINI_MODEL (default: gemini-2.0-flash)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o),
//	         MODEL_BASE_URL (optional OpenAI-compatible endpoint override)
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3)
//	Ark:     ARK_API_KEY, ARK_MODEL
//
//	Shared:  MODEL_MAX_TOKENS (default: 5000), MODEL_TEMPERATURE (default: 0.2)
func ConfigFromEnv() *Config {
	return &Config{
		Backend: Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendGemini))),
		Gemini: ProviderGemini{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		OpenAI: ProviderOpenAI{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o"),
			BaseURL: os.Getenv("MODEL_BASE_URL"),
		},
		Ollama: ProviderOllama{
			Host:  getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
			Model: getEnvOrDefault("OLLAMA_MODEL", "llama3"),
		},
		Ark: ProviderArk{
			APIKey: os.Getenv("ARK_API_KEY"),
			Model:  os.Getenv("ARK_MODEL"),
		},
		Tuning: SharedTuning{
			MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", 5000),
			Temperature: getEnvFloat32("MODEL_TEMPERATURE", 0.2),
		},
	}
}

// NewFromEnv constructs a ChatModel by reading provider configuration from
// environment variables. See ConfigFromEnv for the variable list.
func NewFromEnv(ctx context.Context) (model.ToolCallingChatModel, error) {
	return New(ctx, ConfigFromEnv())
}

// New constructs a ChatModel from an explicit Config, delegating to the
// appropriate backend factory function. It validates the config first so
// callers get a clear error at startup rather than on the first request.
func New(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendGemini:
		return newGemini(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendArk:
		return newArk(ctx, cfg)
	default:
		return nil, fmt.Errorf("provider: unknown backend %q — valid values: gemini, openai, ollama, ark", cfg.Backend)
	}
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

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
