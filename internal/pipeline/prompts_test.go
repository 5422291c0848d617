package pipeline

import (
	"strings"
	"testing"
)

func TestPromptCatalogRender(t *testing.T) {
	c := NewPromptCatalog(nil)

	prompt, snapshot, err := c.Render(DefaultTemplateID, PromptData{
		Transcript: "Speaker 1: hello",
		Context:    "Quarterly check-in with Acme",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(prompt, "Speaker 1: hello") {
		t.Errorf("prompt missing transcript: %q", prompt)
	}
	if !strings.Contains(prompt, "Quarterly check-in with Acme") {
		t.Errorf("prompt missing user context: %q", prompt)
	}
	if !strings.Contains(snapshot, "{{.Transcript}}") {
		t.Errorf("snapshot is not the raw template: %q", snapshot)
	}
}

func TestPromptCatalogOmitsEmptyContext(t *testing.T) {
	c := NewPromptCatalog(nil)
	prompt, _, err := c.Render(DefaultTemplateID, PromptData{Transcript: "x"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(prompt, "Additional context") {
		t.Errorf("context block rendered with no context: %q", prompt)
	}
}

func TestPromptCatalogUnknownIDFallsBack(t *testing.T) {
	c := NewPromptCatalog(nil)
	if c.Snapshot("deleted-template") != c.Snapshot(DefaultTemplateID) {
		t.Error("unknown template did not fall back to default")
	}
}

func TestPromptCatalogOverrides(t *testing.T) {
	c := NewPromptCatalog(map[string]string{
		"standup": "Summarize this standup: {{.Transcript}}",
	})
	prompt, snapshot, err := c.Render("standup", PromptData{Transcript: "notes"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if prompt != "Summarize this standup: notes" {
		t.Errorf("prompt = %q", prompt)
	}
	if snapshot != "Summarize this standup: {{.Transcript}}" {
		t.Errorf("snapshot = %q", snapshot)
	}
}
