package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// storage changes require a restart and are deliberately absent here.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TemplatesChanged is true if any prompt template was added, removed,
	// or had its text modified.
	TemplatesChanged bool
	TemplateChanges  []TemplateDiff

	// RetrievalChanged is true if any retrieval tuning knob changed.
	RetrievalChanged bool
	NewRetrieval     RetrievalConfig
}

// TemplateDiff describes the change to a single prompt template.
type TemplateDiff struct {
	ID       string
	Added    bool
	Removed  bool
	Modified bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Prompt templates
	for id, oldText := range old.Pipeline.PromptTemplates {
		newText, exists := new.Pipeline.PromptTemplates[id]
		if !exists {
			d.TemplateChanges = append(d.TemplateChanges, TemplateDiff{ID: id, Removed: true})
			d.TemplatesChanged = true
			continue
		}
		if oldText != newText {
			d.TemplateChanges = append(d.TemplateChanges, TemplateDiff{ID: id, Modified: true})
			d.TemplatesChanged = true
		}
	}
	for id := range new.Pipeline.PromptTemplates {
		if _, exists := old.Pipeline.PromptTemplates[id]; !exists {
			d.TemplateChanges = append(d.TemplateChanges, TemplateDiff{ID: id, Added: true})
			d.TemplatesChanged = true
		}
	}

	// Retrieval tuning
	if old.Retrieval != new.Retrieval {
		d.RetrievalChanged = true
		d.NewRetrieval = new.Retrieval
	}

	return d
}
