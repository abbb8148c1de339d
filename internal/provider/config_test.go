package provider

import (
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		// ── Gemini ────────────────────────────────────────────────────────────
		{
			name: "gemini/valid",
			cfg: Config{
				Backend: BackendGemini,
				Gemini:  ProviderGemini{APIKey: "AIza-test", Model: "gemini-2.0-flash"},
			},
		},
		{
			name:    "gemini/missing api key",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{Model: "gemini-2.0-flash"}},
			wantErr: "GEMINI_API_KEY",
		},
		{
			name:    "gemini/missing model",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test"}},
			wantErr: "GEMINI_MODEL",
		},

		// ── OpenAI ────────────────────────────────────────────────────────────
		{
			name: "openai/valid",
			cfg: Config{
				Backend: BackendOpenAI,
				OpenAI:  ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o"},
			},
		},
		{
			name: "openai/valid with base url override",
			cfg: Config{
				Backend: BackendOpenAI,
				OpenAI: ProviderOpenAI{
					APIKey:  "AIza-test",
					Model:   "gemini-2.0-flash",
					BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/",
				},
			},
		},
		{
			name:    "openai/missing api key",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{Model: "gpt-4o"}},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "openai/missing model",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test"}},
			wantErr: "OPENAI_MODEL",
		},

		// ── Ollama ────────────────────────────────────────────────────────────
		{
			name: "ollama/valid",
			cfg: Config{
				Backend: BackendOllama,
				Ollama:  ProviderOllama{Host: "http://localhost:11434", Model: "llama3"},
			},
		},
		{
			name:    "ollama/missing model",
			cfg:     Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434"}},
			wantErr: "OLLAMA_MODEL",
		},

		// ── Ark ───────────────────────────────────────────────────────────────
		{
			name: "ark/valid",
			cfg: Config{
				Backend: BackendArk,
				Ark:     ProviderArk{APIKey: "ark-key", Model: "ep-2026-docsqa"},
			},
		},
		{
			name:    "ark/missing api key",
			cfg:     Config{Backend: BackendArk, Ark: ProviderArk{Model: "ep-2026-docsqa"}},
			wantErr: "ARK_API_KEY",
		},
		{
			name:    "ark/missing model",
			cfg:     Config{Backend: BackendArk, Ark: ProviderArk{APIKey: "ark-key"}},
			wantErr: "ARK_MODEL",
		},

		// ── Unknown ───────────────────────────────────────────────────────────
		{
			name:    "unknown backend",
			cfg:     Config{Backend: Backend("watson")},
			wantErr: "unknown backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{
		"MODEL_PROVIDER", "GEMINI_MODEL", "OPENAI_MODEL", "OLLAMA_HOST",
		"OLLAMA_MODEL", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE",
	} {
		t.Setenv(k, "")
	}

	cfg := ConfigFromEnv()

	if cfg.Backend != BackendGemini {
		t.Errorf("default backend: got %q, want %q", cfg.Backend, BackendGemini)
	}
	if cfg.Gemini.Model != "gemini-2.0-flash" {
		t.Errorf("default gemini model: got %q", cfg.Gemini.Model)
	}
	if cfg.Ollama.Host != "http://localhost:11434" {
		t.Errorf("default ollama host: got %q", cfg.Ollama.Host)
	}
	if cfg.Tuning.MaxTokens != 5000 {
		t.Errorf("default max tokens: got %d", cfg.Tuning.MaxTokens)
	}
}
