package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// DefaultTemplateID is used when a recording carries no template selection.
const DefaultTemplateID = "default"

// builtinTemplates are the summary prompt templates shipped with the service.
// Deployments can add or override templates via configuration.
var builtinTemplates = map[string]string{
	DefaultTemplateID: `You are an assistant that writes concise summaries of business phone calls.

Summarize the following conversation. Cover the purpose of the call, the key
points discussed, decisions made, and any commitments either party made.
Write in plain prose, at most three paragraphs.
{{if .Context}}
Additional context provided by the user: {{.Context}}
{{end}}
Conversation transcript:
{{.Transcript}}`,

	"sales-call": `You are an assistant that summarizes sales calls for a CRM.

Summarize the following sales conversation. Identify the prospect's needs and
objections, the pricing or product options discussed, the deal stage, and the
agreed next steps. Be specific about numbers and dates mentioned.
{{if .Context}}
Additional context provided by the user: {{.Context}}
{{end}}
Conversation transcript:
{{.Transcript}}`,

	"interview": `You are an assistant that summarizes interviews.

Summarize the following interview. Capture the candidate's background, the
main topics covered, notable strengths and concerns, and any follow-ups agreed.
{{if .Context}}
Additional context provided by the user: {{.Context}}
{{end}}
Conversation transcript:
{{.Transcript}}`,
}

// PromptData is the data a summary template is rendered with.
type PromptData struct {
	// Transcript is the speaker-labeled transcript text.
	Transcript string

	// Context is optional free text the user supplied about the call.
	Context string
}

// PromptCatalog resolves prompt-template identifiers to template text and
// renders them. Safe for concurrent use.
type PromptCatalog struct {
	mu        sync.RWMutex
	templates map[string]string
}

// NewPromptCatalog returns a catalog seeded with the builtin templates plus
// any overrides. Overrides win over builtins with the same identifier.
func NewPromptCatalog(overrides map[string]string) *PromptCatalog {
	templates := make(map[string]string, len(builtinTemplates)+len(overrides))
	for id, text := range builtinTemplates {
		templates[id] = text
	}
	for id, text := range overrides {
		templates[id] = text
	}
	return &PromptCatalog{templates: templates}
}

// Reload replaces the catalog contents with the builtin templates plus the
// given overrides. Used for hot-reloading template changes from configuration.
func (c *PromptCatalog) Reload(overrides map[string]string) {
	templates := make(map[string]string, len(builtinTemplates)+len(overrides))
	for id, text := range builtinTemplates {
		templates[id] = text
	}
	for id, text := range overrides {
		templates[id] = text
	}
	c.mu.Lock()
	c.templates = templates
	c.mu.Unlock()
}

// Snapshot returns the raw template text for id. Unknown identifiers fall
// back to the default template, so a recording created against a template
// that was later removed still summarizes.
func (c *PromptCatalog) Snapshot(id string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if text, ok := c.templates[id]; ok {
		return text
	}
	return c.templates[DefaultTemplateID]
}

// Render resolves id and executes the template with data. It returns the
// rendered prompt and the raw template snapshot that produced it, which the
// caller persists alongside the summary for auditability.
func (c *PromptCatalog) Render(id string, data PromptData) (prompt, snapshot string, err error) {
	snapshot = c.Snapshot(id)

	tmpl, err := template.New(id).Parse(snapshot)
	if err != nil {
		return "", "", fmt.Errorf("prompt template %q: %w", id, err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render prompt template %q: %w", id, err)
	}
	return buf.String(), snapshot, nil
}
