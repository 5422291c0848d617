package config_test

import (
	"strings"
	"testing"

	"github.com/lschiller/recapd/internal/config"
)

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_ThresholdOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
retrieval:
  similarity_threshold: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range threshold, got nil")
	}
	if !strings.Contains(err.Error(), "similarity_threshold") {
		t.Errorf("error should mention similarity_threshold, got: %v", err)
	}
}

func TestValidate_NegativeValuesJoined(t *testing.T) {
	t.Parallel()
	yaml := `
storage:
  embedding_dimensions: -1
pipeline:
  concurrency: -2
retrieval:
  top_k: -3
  max_context_tokens: -4
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative values, got nil")
	}
	for _, want := range []string{"embedding_dimensions", "concurrency", "top_k", "max_context_tokens"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_EmptyPromptTemplate(t *testing.T) {
	t.Parallel()
	yaml := `
pipeline:
  prompt_templates:
    my-template: ""
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for empty prompt template, got nil")
	}
	if !strings.Contains(err.Error(), "my-template") {
		t.Errorf("error should name the template, got: %v", err)
	}
}

func TestValidate_MinimalConfigIsValid(t *testing.T) {
	t.Parallel()
	// Warnings only — an empty config falls back to in-memory storage and
	// no providers, which is a legal (if limited) deployment.
	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != "" {
		t.Errorf("listen_addr should default empty, got %q", cfg.Server.ListenAddr)
	}
}

func TestValidate_UnknownProviderNameIsWarningOnly(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: my-custom-gateway
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown provider name should only warn, got error: %v", err)
	}
}
