package record

// Status is the pipeline lifecycle state of a Recording.
//
// The happy path is processing → transcribing → summarizing → complete.
// failed is reachable from any non-terminal state; a manual retry moves a
// failed recording back to processing. complete is terminal.
type Status string

const (
	// StatusProcessing marks a recording enqueued but not yet picked up, or
	// re-entering the pipeline after a manual retry.
	StatusProcessing Status = "processing"

	// StatusTranscribing marks the transcribe stage in progress.
	StatusTranscribing Status = "transcribing"

	// StatusSummarizing marks the summarize, extract, and embed stages in
	// progress.
	StatusSummarizing Status = "summarizing"

	// StatusComplete marks all stages finished. Terminal.
	StatusComplete Status = "complete"

	// StatusFailed marks a stage as having exhausted its retries. Only a
	// manual retry leaves this state.
	StatusFailed Status = "failed"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusProcessing, StatusTranscribing, StatusSummarizing, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further automatic transition leaves s.
// failed is not terminal: a manual retry can move it back to processing.
func (s Status) Terminal() bool {
	return s == StatusComplete
}

// transitions is the set of legal status changes.
var transitions = map[Status][]Status{
	StatusProcessing:   {StatusTranscribing, StatusFailed},
	StatusTranscribing: {StatusSummarizing, StatusFailed},
	StatusSummarizing:  {StatusComplete, StatusFailed},
	StatusFailed:       {StatusProcessing},
	StatusComplete:     {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
