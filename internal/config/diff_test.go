package config_test

import (
	"testing"

	"github.com/lschiller/recapd/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Pipeline: config.PipelineConfig{
			PromptTemplates: map[string]string{
				"sales-call": "Summarize this sales call: {{.Transcript}}",
			},
		},
		Retrieval: config.RetrievalConfig{TopK: 15, SimilarityThreshold: 0.7},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.LogLevelChanged || d.TemplatesChanged || d.RetrievalChanged {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	newCfg := baseConfig()
	newCfg.Server.LogLevel = config.LogDebug

	d := config.Diff(baseConfig(), newCfg)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged should be true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel: got %q, want %q", d.NewLogLevel, config.LogDebug)
	}
}

func TestDiff_Templates(t *testing.T) {
	t.Parallel()
	newCfg := baseConfig()
	newCfg.Pipeline.PromptTemplates = map[string]string{
		"sales-call": "Changed text {{.Transcript}}",
		"standup":    "Summarize this standup: {{.Transcript}}",
	}

	d := config.Diff(baseConfig(), newCfg)
	if !d.TemplatesChanged {
		t.Fatal("TemplatesChanged should be true")
	}

	changes := make(map[string]config.TemplateDiff, len(d.TemplateChanges))
	for _, c := range d.TemplateChanges {
		changes[c.ID] = c
	}
	if !changes["sales-call"].Modified {
		t.Errorf("sales-call should be Modified, got %+v", changes["sales-call"])
	}
	if !changes["standup"].Added {
		t.Errorf("standup should be Added, got %+v", changes["standup"])
	}
}

func TestDiff_TemplateRemoved(t *testing.T) {
	t.Parallel()
	newCfg := baseConfig()
	newCfg.Pipeline.PromptTemplates = nil

	d := config.Diff(baseConfig(), newCfg)
	if !d.TemplatesChanged {
		t.Fatal("TemplatesChanged should be true")
	}
	if len(d.TemplateChanges) != 1 || !d.TemplateChanges[0].Removed {
		t.Errorf("expected single Removed change, got %+v", d.TemplateChanges)
	}
}

func TestDiff_Retrieval(t *testing.T) {
	t.Parallel()
	newCfg := baseConfig()
	newCfg.Retrieval.SimilarityThreshold = 0.8

	d := config.Diff(baseConfig(), newCfg)
	if !d.RetrievalChanged {
		t.Fatal("RetrievalChanged should be true")
	}
	if d.NewRetrieval.SimilarityThreshold != 0.8 {
		t.Errorf("NewRetrieval.SimilarityThreshold: got %v, want 0.8", d.NewRetrieval.SimilarityThreshold)
	}
}
