package provider

import (
	"strings"
	"testing"
)

func Test_Config_Validate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "ollama needs nothing",
			cfg:  Config{Backend: BackendOllama},
		},
		{
			name:    "openai requires api key",
			cfg:     Config{Backend: BackendOpenAI, Model: "gpt-4o"},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name: "openai with key passes",
			cfg:  Config{Backend: BackendOpenAI, Model: "gpt-4o", APIKey: "sk-test"},
		},
		{
			name:    "azure requires endpoint",
			cfg:     Config{Backend: BackendAzure, APIKey: "k", AzureDeployment: "gpt-4.1"},
			wantErr: "AZURE_OPENAI_ENDPOINT",
		},
		{
			name:    "azure requires deployment",
			cfg:     Config{Backend: BackendAzure, APIKey: "k", BaseURL: "https://r.openai.azure.com"},
			wantErr: "AZURE_OPENAI_DEPLOYMENT",
		},
		{
			name: "azure complete passes",
			cfg: Config{Backend: BackendAzure, APIKey: "k",
				BaseURL: "https://r.openai.azure.com", AzureDeployment: "gpt-4.1"},
		},
		{
			name:    "bedrock requires model id",
			cfg:     Config{Backend: BackendBedrock},
			wantErr: "BEDROCK_MODEL_ID",
		},
		{
			name:    "gemini requires api key",
			cfg:     Config{Backend: BackendGemini, Model: "gemini-1.5-pro"},
			wantErr: "GOOGLE_API_KEY",
		},
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "watson"},
			wantErr: "unknown backend",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("want valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("want error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func Test_ConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "")
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("OLLAMA_MODEL", "")
	t.Setenv("MODEL_MAX_TOKENS", "")
	t.Setenv("MODEL_TEMPERATURE", "")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Backend != BackendOllama {
		t.Errorf("want default backend ollama, got %s", cfg.Backend)
	}
	if cfg.BaseURL != "http://localhost:11434" {
		t.Errorf("want default ollama host, got %s", cfg.BaseURL)
	}
	if cfg.MaxTokens != 4096 {
		t.Errorf("want default max tokens 4096, got %d", cfg.MaxTokens)
	}
}

func Test_ConfigFromEnv_Azure(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "azure")
	t.Setenv("AZURE_OPENAI_API_KEY", "k")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://r.openai.azure.com")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT", "gpt-4.1")
	t.Setenv("AZURE_OPENAI_API_VERSION", "")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.AzureDeployment != "gpt-4.1" {
		t.Errorf("deployment not resolved: %+v", cfg)
	}
	if cfg.AzureAPIVersion != "2024-02-01" {
		t.Errorf("want default api version, got %s", cfg.AzureAPIVersion)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("resolved config must validate: %v", err)
	}
}
