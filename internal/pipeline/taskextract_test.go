package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lschiller/recapd/pkg/provider"
	"github.com/lschiller/recapd/pkg/provider/llm"
	llmmock "github.com/lschiller/recapd/pkg/provider/llm/mock"

	"github.com/lschiller/recapd/internal/record"
)

func TestParseTasks(t *testing.T) {
	raw := `[
		{
			"description": "Send pricing deck",
			"owner": "Me",
			"due_date": "2026-09-04",
			"priority": "medium",
			"source_quote": "I'll send the deck Friday."
		},
		{
			"description": "Review contract",
			"owner": "Dana",
			"priority": "high",
			"source_quote": "Dana will look over the contract."
		}
	]`

	tasks, err := parseTasks(raw)
	if err != nil {
		t.Fatalf("parseTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}

	first := tasks[0]
	if first.Description != "Send pricing deck" || first.Owner != "Me" {
		t.Errorf("first task = %+v", first)
	}
	if first.Priority != record.PriorityMedium {
		t.Errorf("priority = %s, want medium", first.Priority)
	}
	if first.DueDate == nil || first.DueDate.Format("2006-01-02") != "2026-09-04" {
		t.Errorf("due date = %v, want 2026-09-04", first.DueDate)
	}
	if first.Status != record.TaskOpen {
		t.Errorf("status = %s, want open", first.Status)
	}
	if first.ID == "" || tasks[1].ID == first.ID {
		t.Error("task IDs not unique")
	}

	if tasks[1].DueDate != nil {
		t.Errorf("second task due date = %v, want nil", tasks[1].DueDate)
	}
}

func TestParseTasksToleratesCodeFences(t *testing.T) {
	raw := "```json\n[{\"description\": \"Call back\", \"owner\": \"Me\", \"priority\": \"low\"}]\n```"
	tasks, err := parseTasks(raw)
	if err != nil {
		t.Fatalf("parseTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Description != "Call back" {
		t.Fatalf("tasks = %+v", tasks)
	}
}

func TestParseTasksEmptyArray(t *testing.T) {
	tasks, err := parseTasks("[]")
	if err != nil {
		t.Fatalf("parseTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("got %d tasks, want 0", len(tasks))
	}
}

func TestParseTasksMalformedIsTransient(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not an array", `{"description": "x"}`},
		{"prose response", "I could not find any tasks in this transcript."},
		{"missing description", `[{"owner": "Me", "priority": "low"}]`},
		{"missing owner", `[{"description": "x", "priority": "low"}]`},
		{"invalid priority", `[{"description": "x", "owner": "Me", "priority": "urgent"}]`},
		{"bad due date", `[{"description": "x", "owner": "Me", "priority": "low", "due_date": "Friday"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseTasks(tt.raw)
			if err == nil {
				t.Fatal("parseTasks succeeded, want error")
			}
			if !provider.IsTransient(err) {
				t.Errorf("parse error classified permanent: %v", err)
			}
		})
	}
}

func TestParseTasksDefaultsPriority(t *testing.T) {
	tasks, err := parseTasks(`[{"description": "x", "owner": "Me"}]`)
	if err != nil {
		t.Fatalf("parseTasks: %v", err)
	}
	if tasks[0].Priority != record.PriorityMedium {
		t.Errorf("priority = %s, want medium default", tasks[0].Priority)
	}
}

func TestExtractTasksPromptContainsDateAndTranscript(t *testing.T) {
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `[]`},
	}
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	_, err := extractTasks(context.Background(), p, "Speaker 1: Client asked for pricing.", now)
	if err != nil {
		t.Fatalf("extractTasks: %v", err)
	}

	if len(p.CompleteCalls) != 1 {
		t.Fatalf("Complete called %d times, want 1", len(p.CompleteCalls))
	}
	req := p.CompleteCalls[0].Req
	if req.SystemPrompt == "" {
		t.Error("extraction request has no system prompt")
	}
	content := req.Messages[0].Content
	if !strings.Contains(content, "2026-09-01") {
		t.Errorf("prompt missing current date: %q", content)
	}
	if !strings.Contains(content, "Client asked for pricing.") {
		t.Errorf("prompt missing transcript: %q", content)
	}
	if req.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0 for structured output", req.Temperature)
	}
}
