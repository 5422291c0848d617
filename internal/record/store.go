package record

import "context"

// Store is the persistence contract for recordings and their derived
// artifacts. Implementations must be safe for concurrent use.
//
// Writes that touch a recording's lifecycle fields (status, error message,
// retry count) must be atomic per call so that the pipeline's invariants
// survive a crash between calls.
type Store interface {
	// CreateRecording inserts a new recording. Returns ErrAlreadyExists when
	// the ID is taken.
	CreateRecording(ctx context.Context, rec Recording) error

	// GetRecording returns the recording with the given ID, or ErrNotFound.
	GetRecording(ctx context.Context, id string) (*Recording, error)

	// UpdateStatus moves the recording to the given status and clears any
	// error message. Use MarkFailed for failure transitions.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// MarkFailed sets status to failed and records the verbatim error message
	// in one atomic write.
	MarkFailed(ctx context.Context, id, errMsg string) error

	// SetRetryCount persists the accumulated failed-attempt counter.
	SetRetryCount(ctx context.Context, id string, count int) error

	// ResetForRetry atomically moves a failed recording back to processing,
	// clears its error message, resets its retry count to zero, and clears
	// the dismissed flag. Returns ErrNotFound when the recording does not
	// exist and an error when it is not in the failed state.
	ResetForRetry(ctx context.Context, id string) error

	// SetDismissed flips the attention-surface dismissed flag.
	SetDismissed(ctx context.Context, id string, dismissed bool) error

	// ListFailed returns all recordings in the failed state that have not
	// been dismissed, most recent first.
	ListFailed(ctx context.Context) ([]Recording, error)

	// ListByStatus returns all recordings in the given status, oldest first.
	// Used at startup to resume interrupted work.
	ListByStatus(ctx context.Context, status Status) ([]Recording, error)

	// CreateSpeakerAssignments inserts the slot-to-contact mappings for a
	// recording. Assignments are immutable once created.
	CreateSpeakerAssignments(ctx context.Context, recordingID string, assignments []SpeakerAssignment) error

	// GetSpeakerAssignments returns the assignments for a recording, ordered
	// by slot. An empty slice means none were made.
	GetSpeakerAssignments(ctx context.Context, recordingID string) ([]SpeakerAssignment, error)

	// CreateTranscript inserts the transcript for a recording. Returns
	// ErrAlreadyExists when the recording already has one — a resumed
	// pipeline run must not produce duplicates.
	CreateTranscript(ctx context.Context, t Transcript) error

	// GetTranscript returns the transcript of a recording, or ErrNotFound.
	GetTranscript(ctx context.Context, recordingID string) (*Transcript, error)

	// SetTranscriptEmbedding attaches the embedding vector to a recording's
	// transcript.
	SetTranscriptEmbedding(ctx context.Context, recordingID string, embedding []float32) error

	// CreateSummary inserts the summary for a recording. Returns
	// ErrAlreadyExists when the recording already has one.
	CreateSummary(ctx context.Context, s Summary) error

	// GetSummary returns the summary of a recording, or ErrNotFound.
	GetSummary(ctx context.Context, recordingID string) (*Summary, error)

	// SetSummaryEmbedding attaches the embedding vector to a recording's
	// summary.
	SetSummaryEmbedding(ctx context.Context, recordingID string, embedding []float32) error

	// ReplaceTasks deletes any existing tasks for the recording and inserts
	// the given ones in a single transaction. A resumed extract stage is
	// thereby idempotent.
	ReplaceTasks(ctx context.Context, recordingID string, tasks []Task) error

	// ListTasks returns the tasks of a recording in creation order.
	ListTasks(ctx context.Context, recordingID string) ([]Task, error)

	// SearchByVector returns embedded units ranked by cosine similarity to
	// the query vector, keeping only hits at or above threshold, at most
	// limit results. Filter predicates are applied in the same query as the
	// vector ranking.
	SearchByVector(ctx context.Context, vector []float32, threshold float64, limit int, f SearchFilter) ([]SearchHit, error)

	// Close releases the store's resources.
	Close() error
}
