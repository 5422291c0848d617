// Package record defines the domain model for recorded conversations and the
// Store contract that persistence backends implement.
//
// A Recording owns its Transcript, Summary, Tasks, and SpeakerAssignments
// exclusively (cascade-delete semantics). Contacts are referenced by
// identifier only — they live in an external collaborator and are never
// owned here.
package record

import (
	"errors"
	"time"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("record: not found")

	// ErrAlreadyExists is returned when a uniqueness constraint would be
	// violated, e.g. creating a second Transcript for the same Recording.
	ErrAlreadyExists = errors.New("record: already exists")
)

// Recording is one audio capture of a business conversation.
//
// Invariants:
//   - ErrorMessage is non-empty iff Status == StatusFailed.
//   - RetryCount increments only on a stage failure, never on success, and
//     resets to 0 only via a manual retry.
//
// A Recording is created when recording stops and mutated only by the
// processing pipeline; deletion is a user-initiated action outside this scope.
type Recording struct {
	// ID is the unique recording identifier (a UUID).
	ID string

	// AudioPath is the storage path of the finished audio file.
	AudioPath string

	// Duration is the length of the audio capture.
	Duration time.Duration

	// PromptTemplateID selects the summary prompt template for this recording.
	PromptTemplateID string

	// Status is the pipeline lifecycle state.
	Status Status

	// ErrorMessage holds the verbatim error string of the failure that moved
	// the recording into StatusFailed. Empty in every other state.
	ErrorMessage string

	// RetryCount is the number of failed stage attempts accumulated by the
	// automatic pipeline since the last manual retry.
	RetryCount int

	// Context is optional free text supplied by the user about the call.
	Context string

	// Dismissed marks a failed recording as acknowledged in the attention
	// surface without retrying it.
	Dismissed bool

	// CreatedAt is when the recording row was created.
	CreatedAt time.Time

	// UpdatedAt is when the recording row was last modified.
	UpdatedAt time.Time
}

// SpeakerAssignment maps a numeric speaker slot within one Recording to a
// Contact identifier. Slot 1 is reserved for the device owner. Assignments
// are immutable once created; at most one exists per (recording, slot).
type SpeakerAssignment struct {
	// RecordingID is the owning recording.
	RecordingID string

	// Slot is the numeric speaker slot (1..N).
	Slot int

	// ContactID references the contact resolved for this slot.
	ContactID string
}

// Segment is one contiguous, speaker-attributed span within a Transcript.
type Segment struct {
	// Speaker is the numeric speaker slot (1..N, 0 when diarization was
	// unavailable).
	Speaker int

	// Start is the offset of the segment start relative to the beginning of
	// the recording.
	Start time.Duration

	// End is the offset of the segment end.
	End time.Duration

	// Text is the transcribed speech content.
	Text string
}

// Transcript holds the full transcribed text of one Recording plus its
// ordered segments. Exactly one Transcript exists per Recording (enforced by
// the store). The embedding vector is filled in by the embed stage after
// creation.
type Transcript struct {
	// ID is the unique transcript identifier (a UUID).
	ID string

	// RecordingID is the owning recording.
	RecordingID string

	// FullText is the merged text of all segments.
	FullText string

	// Segments is the ordered sequence of speaker-attributed spans.
	Segments []Segment

	// Embedding is the vector representation of FullText. Nil until the embed
	// stage has run.
	Embedding []float32

	// CreatedAt is when the transcribe stage succeeded.
	CreatedAt time.Time
}

// Summary holds the generated summary of one Recording. Exactly one Summary
// exists per Recording. The prompt template text is snapshotted at generation
// time for auditability — templates may change later.
type Summary struct {
	// ID is the unique summary identifier (a UUID).
	ID string

	// RecordingID is the owning recording.
	RecordingID string

	// Text is the generated summary.
	Text string

	// PromptTemplateID names the template that was selected.
	PromptTemplateID string

	// PromptSnapshot is the full template text actually used.
	PromptSnapshot string

	// Embedding is the vector representation of Text. Nil until the embed
	// stage has run.
	Embedding []float32

	// CreatedAt is when the summarize stage succeeded.
	CreatedAt time.Time
}

// TaskStatus is the completion state of an extracted follow-up task.
type TaskStatus string

const (
	TaskOpen      TaskStatus = "open"
	TaskCompleted TaskStatus = "completed"
)

// TaskPriority ranks the urgency of an extracted task.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// IsValid reports whether p is a recognised priority.
func (p TaskPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a follow-up action item extracted from a Transcript. Zero or more
// exist per Recording. Status is later mutated by manual user action, which is
// outside the pipeline's scope.
type Task struct {
	// ID is the unique task identifier (a UUID).
	ID string

	// RecordingID is the owning recording.
	RecordingID string

	// Description is what needs to be done.
	Description string

	// Owner is the party responsible ("Me" for the device owner, otherwise a
	// speaker's name as heard in the call).
	Owner string

	// DueDate is the deadline, when one was stated. Nil otherwise.
	DueDate *time.Time

	// Priority is the extracted urgency.
	Priority TaskPriority

	// SourceQuote is the verbatim transcript span the task was derived from.
	SourceQuote string

	// Status is the completion state.
	Status TaskStatus

	// ContactID optionally links the task to a contact.
	ContactID string

	// CreatedAt is when the extract stage succeeded.
	CreatedAt time.Time
}

// UnitType identifies the kind of embedded content a search hit came from.
type UnitType string

const (
	UnitTranscript UnitType = "transcript"
	UnitSummary    UnitType = "summary"
)

// SearchHit is one result of a vector similarity search across all embedded
// content. It is the read model the retrieval engine is polymorphic over —
// any persisted text artifact that carries a vector can surface here.
type SearchHit struct {
	// Type is the kind of embedded unit.
	Type UnitType

	// ID is the identifier of the embedded unit (transcript or summary ID).
	ID string

	// RecordingID is the recording the unit belongs to.
	RecordingID string

	// Text is the unit's text content.
	Text string

	// ContactID is the contact transitively associated with the unit via the
	// recording's speaker assignments (slot 2, the far end). Empty when no
	// assignment exists.
	ContactID string

	// Similarity is the cosine similarity to the query vector (1.0 = identical).
	Similarity float64
}

// SearchFilter narrows a similarity search with exact-match predicates.
// All non-zero fields are applied as AND conditions, combined with the vector
// ranking in a single query.
type SearchFilter struct {
	// Types restricts results to the listed unit types. Empty matches all.
	Types []UnitType

	// ContactID restricts results to units associated with this contact.
	ContactID string

	// After filters units created after this instant (exclusive).
	After time.Time

	// Before filters units created before this instant (exclusive).
	Before time.Time
}
