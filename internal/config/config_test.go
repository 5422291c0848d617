package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/lschiller/recapd/internal/config"
	"github.com/lschiller/recapd/pkg/provider/embeddings"
	"github.com/lschiller/recapd/pkg/provider/llm"
	"github.com/lschiller/recapd/pkg/provider/stt"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info

providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o
  stt:
    name: whisper
    base_url: http://localhost:9000
    options:
      language: en
  embeddings:
    name: openai
    api_key: sk-test
    model: text-embedding-3-small

storage:
  postgres_dsn: "postgres://localhost/recapd"
  embedding_dimensions: 1536

pipeline:
  concurrency: 4
  prompt_templates:
    board-meeting: |
      Summarize this board meeting transcript:
      {{.Transcript}}

retrieval:
  top_k: 10
  similarity_threshold: 0.65
  max_context_tokens: 4000
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "gpt-4o" {
		t.Errorf("llm provider: got %+v", cfg.Providers.LLM)
	}
	if cfg.Providers.STT.BaseURL != "http://localhost:9000" {
		t.Errorf("stt base_url: got %q", cfg.Providers.STT.BaseURL)
	}
	if lang, ok := cfg.Providers.STT.Options["language"]; !ok || lang != "en" {
		t.Errorf("stt options.language: got %v", cfg.Providers.STT.Options)
	}
	if cfg.Storage.EmbeddingDimensions != 1536 {
		t.Errorf("embedding_dimensions: got %d, want 1536", cfg.Storage.EmbeddingDimensions)
	}
	if cfg.Pipeline.Concurrency != 4 {
		t.Errorf("pipeline.concurrency: got %d, want 4", cfg.Pipeline.Concurrency)
	}
	if _, ok := cfg.Pipeline.PromptTemplates["board-meeting"]; !ok {
		t.Errorf("prompt_templates missing board-meeting: %v", cfg.Pipeline.PromptTemplates)
	}
	if cfg.Retrieval.TopK != 10 {
		t.Errorf("retrieval.top_k: got %d, want 10", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.SimilarityThreshold != 0.65 {
		t.Errorf("retrieval.similarity_threshold: got %v, want 0.65", cfg.Retrieval.SimilarityThreshold)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  port: 8080
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

type stubLLM struct{ llm.Provider }

type stubSTT struct{ stt.Provider }

type stubEmbeddings struct{ embeddings.Provider }

func TestRegistry_RegisterAndCreate(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	reg.RegisterLLM("stub", func(entry config.ProviderEntry) (llm.Provider, error) {
		if entry.Model != "test-model" {
			t.Errorf("factory received model %q, want %q", entry.Model, "test-model")
		}
		return stubLLM{}, nil
	})
	reg.RegisterSTT("stub", func(config.ProviderEntry) (stt.Provider, error) {
		return stubSTT{}, nil
	})
	reg.RegisterEmbeddings("stub", func(config.ProviderEntry) (embeddings.Provider, error) {
		return stubEmbeddings{}, nil
	})

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "stub", Model: "test-model"}); err != nil {
		t.Errorf("CreateLLM: %v", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "stub"}); err != nil {
		t.Errorf("CreateSTT: %v", err)
	}
	if _, err := reg.CreateEmbeddings(config.ProviderEntry{Name: "stub"}); err != nil {
		t.Errorf("CreateEmbeddings: %v", err)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	_, err := reg.CreateLLM(config.ProviderEntry{Name: "ghost"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM: got %v, want ErrProviderNotRegistered", err)
	}
	_, err = reg.CreateSTT(config.ProviderEntry{Name: "ghost"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT: got %v, want ErrProviderNotRegistered", err)
	}
	_, err = reg.CreateEmbeddings(config.ProviderEntry{Name: "ghost"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateEmbeddings: got %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryErrorPropagates(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	wantErr := errors.New("bad credentials")
	reg.RegisterLLM("failing", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, wantErr
	})

	_, err := reg.CreateLLM(config.ProviderEntry{Name: "failing"})
	if !errors.Is(err, wantErr) {
		t.Errorf("CreateLLM: got %v, want %v", err, wantErr)
	}
}
