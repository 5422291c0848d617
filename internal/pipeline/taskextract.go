package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/lschiller/recapd/internal/record"
	"github.com/lschiller/recapd/pkg/provider"
	"github.com/lschiller/recapd/pkg/provider/llm"
)

// extractSystemPrompt instructs the model to emit machine-readable tasks.
// Relative dates ("Friday", "next week") are resolved by the model against
// the current date injected into the user prompt.
const extractSystemPrompt = `You extract follow-up tasks from business call transcripts.

Respond with a JSON array and nothing else. Each element has the fields:
  "description":  what needs to be done, short imperative phrase
  "owner":        who committed to it — "Me" for the device owner, otherwise the speaker's name as heard in the call
  "due_date":     the deadline as YYYY-MM-DD, resolved against today's date; omit when no deadline was stated
  "priority":     "low", "medium", or "high"
  "source_quote": the verbatim transcript span the task was derived from

Only include genuine commitments and action items. If the transcript contains
none, respond with an empty JSON array: []`

// extractUserPrompt is the user-message template for task extraction.
const extractUserPrompt = `Today's date is %s.

Transcript:
%s`

// dueDateFormats are the layouts accepted for the model's due_date field, in
// order of preference.
var dueDateFormats = []string{"2006-01-02", time.RFC3339}

// extractTasks runs the second LLM pass over the transcript and parses the
// structured output. A response that does not parse against the expected
// shape is reported as a transient error: it usually indicates a malformed
// but recoverable model response, so the caller's retry policy applies.
func extractTasks(ctx context.Context, p llm.Provider, transcriptText string, now time.Time) ([]record.Task, error) {
	resp, err := p.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: extractSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(extractUserPrompt, now.Format("2006-01-02"), transcriptText)},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}
	return parseTasks(resp.Content)
}

// parseTasks validates and converts the model's JSON array into tasks.
// Markdown code fences around the JSON are tolerated.
func parseTasks(raw string) ([]record.Task, error) {
	cleaned := stripCodeFence(raw)

	parsed := gjson.Parse(cleaned)
	if !parsed.IsArray() {
		return nil, provider.Transientf("task extraction: response is not a JSON array: %.120s", cleaned)
	}

	var (
		tasks    []record.Task
		parseErr error
	)
	parsed.ForEach(func(_, item gjson.Result) bool {
		task, err := parseTask(item)
		if err != nil {
			parseErr = err
			return false
		}
		tasks = append(tasks, task)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return tasks, nil
}

func parseTask(item gjson.Result) (record.Task, error) {
	if !item.IsObject() {
		return record.Task{}, provider.Transientf("task extraction: array element is not an object: %.120s", item.Raw)
	}

	description := strings.TrimSpace(item.Get("description").String())
	if description == "" {
		return record.Task{}, provider.Transientf("task extraction: missing description: %.120s", item.Raw)
	}
	owner := strings.TrimSpace(item.Get("owner").String())
	if owner == "" {
		return record.Task{}, provider.Transientf("task extraction: missing owner: %.120s", item.Raw)
	}

	priority := record.TaskPriority(strings.ToLower(item.Get("priority").String()))
	if priority == "" {
		priority = record.PriorityMedium
	}
	if !priority.IsValid() {
		return record.Task{}, provider.Transientf("task extraction: invalid priority %q", item.Get("priority").String())
	}

	task := record.Task{
		ID:          uuid.NewString(),
		Description: description,
		Owner:       owner,
		Priority:    priority,
		SourceQuote: strings.TrimSpace(item.Get("source_quote").String()),
		Status:      record.TaskOpen,
	}

	if rawDue := item.Get("due_date").String(); rawDue != "" {
		due, err := parseDueDate(rawDue)
		if err != nil {
			return record.Task{}, err
		}
		task.DueDate = &due
	}
	return task, nil
}

func parseDueDate(raw string) (time.Time, error) {
	for _, layout := range dueDateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, provider.Transientf("task extraction: unparseable due date %q", raw)
}

// stripCodeFence removes a surrounding markdown code fence, with or without a
// language tag, from the model response.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", ...).
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 10 {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
