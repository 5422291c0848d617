package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/lschiller/recapd/internal/record"
)

// Compile-time interface check.
var _ record.Store = (*Store)(nil)

// Store is the PostgreSQL-backed [record.Store]. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the configured
// embedding model.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping verifies database connectivity. Used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) CreateRecording(ctx context.Context, rec record.Recording) error {
	const q = `
		INSERT INTO recordings
		    (id, audio_path, duration_ns, prompt_template_id, status,
		     error_message, retry_count, context, dismissed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`

	_, err := s.pool.Exec(ctx, q,
		rec.ID,
		rec.AudioPath,
		rec.Duration.Nanoseconds(),
		rec.PromptTemplateID,
		string(rec.Status),
		rec.ErrorMessage,
		rec.RetryCount,
		rec.Context,
		rec.Dismissed,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("recording %q: %w", rec.ID, record.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	return nil
}

const recordingColumns = `id, audio_path, duration_ns, prompt_template_id, status,
       error_message, retry_count, context, dismissed, created_at, updated_at`

func scanRecording(row pgx.CollectableRow) (record.Recording, error) {
	var (
		rec        record.Recording
		durationNS int64
		status     string
	)
	err := row.Scan(
		&rec.ID,
		&rec.AudioPath,
		&durationNS,
		&rec.PromptTemplateID,
		&status,
		&rec.ErrorMessage,
		&rec.RetryCount,
		&rec.Context,
		&rec.Dismissed,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return record.Recording{}, err
	}
	rec.Duration = time.Duration(durationNS)
	rec.Status = record.Status(status)
	return rec, nil
}

func (s *Store) GetRecording(ctx context.Context, id string) (*record.Recording, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	rec, err := pgx.CollectOneRow(rows, scanRecording)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("recording %q: %w", id, record.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return &rec, nil
}

// exec runs a single-row mutation and maps a zero-row result to ErrNotFound.
func (s *Store) exec(ctx context.Context, op, id, q string, args ...any) error {
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %q: %w", op, id, record.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status record.Status) error {
	const q = `
		UPDATE recordings
		SET    status = $2, error_message = '', updated_at = now()
		WHERE  id = $1`
	return s.exec(ctx, "update status", id, q, id, string(status))
}

func (s *Store) MarkFailed(ctx context.Context, id, errMsg string) error {
	const q = `
		UPDATE recordings
		SET    status = $2, error_message = $3, updated_at = now()
		WHERE  id = $1`
	return s.exec(ctx, "mark failed", id, q, id, string(record.StatusFailed), errMsg)
}

func (s *Store) SetRetryCount(ctx context.Context, id string, count int) error {
	const q = `
		UPDATE recordings
		SET    retry_count = $2, updated_at = now()
		WHERE  id = $1`
	return s.exec(ctx, "set retry count", id, q, id, count)
}

func (s *Store) ResetForRetry(ctx context.Context, id string) error {
	const q = `
		UPDATE recordings
		SET    status = $2, error_message = '', retry_count = 0,
		       dismissed = FALSE, updated_at = now()
		WHERE  id = $1 AND status = $3`
	tag, err := s.pool.Exec(ctx, q, id, string(record.StatusProcessing), string(record.StatusFailed))
	if err != nil {
		return fmt.Errorf("reset for retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "missing" from "not failed".
		rec, getErr := s.GetRecording(ctx, id)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("recording %q: retry from status %q", id, rec.Status)
	}
	return nil
}

func (s *Store) SetDismissed(ctx context.Context, id string, dismissed bool) error {
	const q = `
		UPDATE recordings
		SET    dismissed = $2, updated_at = now()
		WHERE  id = $1`
	return s.exec(ctx, "set dismissed", id, q, id, dismissed)
}

func (s *Store) ListFailed(ctx context.Context) ([]record.Recording, error) {
	const q = `
		SELECT ` + recordingColumns + `
		FROM   recordings
		WHERE  status = $1 AND NOT dismissed
		ORDER  BY updated_at DESC`
	rows, err := s.pool.Query(ctx, q, string(record.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanRecording)
	if err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}
	return out, nil
}

func (s *Store) ListByStatus(ctx context.Context, status record.Status) ([]record.Recording, error) {
	const q = `
		SELECT ` + recordingColumns + `
		FROM   recordings
		WHERE  status = $1
		ORDER  BY created_at`
	rows, err := s.pool.Query(ctx, q, string(status))
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanRecording)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	return out, nil
}

func (s *Store) CreateSpeakerAssignments(ctx context.Context, recordingID string, assignments []record.SpeakerAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("create speaker assignments: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `
		INSERT INTO speaker_assignments (recording_id, slot, contact_id)
		VALUES ($1, $2, $3)`
	for _, a := range assignments {
		if _, err := tx.Exec(ctx, q, recordingID, a.Slot, a.ContactID); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("recording %q slot %d: %w", recordingID, a.Slot, record.ErrAlreadyExists)
			}
			return fmt.Errorf("create speaker assignments: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("create speaker assignments: %w", err)
	}
	return nil
}

func (s *Store) GetSpeakerAssignments(ctx context.Context, recordingID string) ([]record.SpeakerAssignment, error) {
	const q = `
		SELECT recording_id, slot, contact_id
		FROM   speaker_assignments
		WHERE  recording_id = $1
		ORDER  BY slot`
	rows, err := s.pool.Query(ctx, q, recordingID)
	if err != nil {
		return nil, fmt.Errorf("get speaker assignments: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (record.SpeakerAssignment, error) {
		var a record.SpeakerAssignment
		err := row.Scan(&a.RecordingID, &a.Slot, &a.ContactID)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("get speaker assignments: %w", err)
	}
	return out, nil
}

// segmentJSON is the JSONB wire shape of a transcript segment. Offsets are
// stored as nanoseconds to round-trip time.Duration exactly.
type segmentJSON struct {
	Speaker int    `json:"speaker"`
	StartNS int64  `json:"start_ns"`
	EndNS   int64  `json:"end_ns"`
	Text    string `json:"text"`
}

func encodeSegments(segments []record.Segment) ([]byte, error) {
	out := make([]segmentJSON, len(segments))
	for i, seg := range segments {
		out[i] = segmentJSON{
			Speaker: seg.Speaker,
			StartNS: seg.Start.Nanoseconds(),
			EndNS:   seg.End.Nanoseconds(),
			Text:    seg.Text,
		}
	}
	return json.Marshal(out)
}

func decodeSegments(data []byte) ([]record.Segment, error) {
	var raw []segmentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]record.Segment, len(raw))
	for i, seg := range raw {
		out[i] = record.Segment{
			Speaker: seg.Speaker,
			Start:   time.Duration(seg.StartNS),
			End:     time.Duration(seg.EndNS),
			Text:    seg.Text,
		}
	}
	return out, nil
}

func (s *Store) CreateTranscript(ctx context.Context, t record.Transcript) error {
	segments, err := encodeSegments(t.Segments)
	if err != nil {
		return fmt.Errorf("create transcript: encode segments: %w", err)
	}

	var embedding *pgvector.Vector
	if t.Embedding != nil {
		v := pgvector.NewVector(t.Embedding)
		embedding = &v
	}

	const q = `
		INSERT INTO transcripts (id, recording_id, full_text, segments, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))`
	var createdAt *time.Time
	if !t.CreatedAt.IsZero() {
		createdAt = &t.CreatedAt
	}
	_, err = s.pool.Exec(ctx, q, t.ID, t.RecordingID, t.FullText, segments, embedding, createdAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("transcript for recording %q: %w", t.RecordingID, record.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create transcript: %w", err)
	}
	return nil
}

func (s *Store) GetTranscript(ctx context.Context, recordingID string) (*record.Transcript, error) {
	const q = `
		SELECT id, recording_id, full_text, segments, embedding, created_at
		FROM   transcripts
		WHERE  recording_id = $1`

	var (
		t         record.Transcript
		segments  []byte
		embedding *pgvector.Vector
	)
	err := s.pool.QueryRow(ctx, q, recordingID).Scan(
		&t.ID, &t.RecordingID, &t.FullText, &segments, &embedding, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transcript for recording %q: %w", recordingID, record.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	if t.Segments, err = decodeSegments(segments); err != nil {
		return nil, fmt.Errorf("get transcript: decode segments: %w", err)
	}
	if embedding != nil {
		t.Embedding = embedding.Slice()
	}
	return &t, nil
}

func (s *Store) SetTranscriptEmbedding(ctx context.Context, recordingID string, embedding []float32) error {
	const q = `UPDATE transcripts SET embedding = $2 WHERE recording_id = $1`
	return s.exec(ctx, "set transcript embedding", recordingID, q, recordingID, pgvector.NewVector(embedding))
}

func (s *Store) CreateSummary(ctx context.Context, sum record.Summary) error {
	var embedding *pgvector.Vector
	if sum.Embedding != nil {
		v := pgvector.NewVector(sum.Embedding)
		embedding = &v
	}

	const q = `
		INSERT INTO summaries
		    (id, recording_id, text, prompt_template_id, prompt_snapshot, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))`
	var createdAt *time.Time
	if !sum.CreatedAt.IsZero() {
		createdAt = &sum.CreatedAt
	}
	_, err := s.pool.Exec(ctx, q,
		sum.ID, sum.RecordingID, sum.Text, sum.PromptTemplateID, sum.PromptSnapshot, embedding, createdAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("summary for recording %q: %w", sum.RecordingID, record.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create summary: %w", err)
	}
	return nil
}

func (s *Store) GetSummary(ctx context.Context, recordingID string) (*record.Summary, error) {
	const q = `
		SELECT id, recording_id, text, prompt_template_id, prompt_snapshot, embedding, created_at
		FROM   summaries
		WHERE  recording_id = $1`

	var (
		sum       record.Summary
		embedding *pgvector.Vector
	)
	err := s.pool.QueryRow(ctx, q, recordingID).Scan(
		&sum.ID, &sum.RecordingID, &sum.Text, &sum.PromptTemplateID,
		&sum.PromptSnapshot, &embedding, &sum.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("summary for recording %q: %w", recordingID, record.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	if embedding != nil {
		sum.Embedding = embedding.Slice()
	}
	return &sum, nil
}

func (s *Store) SetSummaryEmbedding(ctx context.Context, recordingID string, embedding []float32) error {
	const q = `UPDATE summaries SET embedding = $2 WHERE recording_id = $1`
	return s.exec(ctx, "set summary embedding", recordingID, q, recordingID, pgvector.NewVector(embedding))
}

func (s *Store) ReplaceTasks(ctx context.Context, recordingID string, tasks []record.Task) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replace tasks: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM tasks WHERE recording_id = $1`, recordingID); err != nil {
		return fmt.Errorf("replace tasks: delete: %w", err)
	}

	const q = `
		INSERT INTO tasks
		    (id, recording_id, description, owner, due_date, priority,
		     source_quote, status, contact_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()))`
	for _, t := range tasks {
		var createdAt *time.Time
		if !t.CreatedAt.IsZero() {
			createdAt = &t.CreatedAt
		}
		_, err := tx.Exec(ctx, q,
			t.ID, recordingID, t.Description, t.Owner, t.DueDate,
			string(t.Priority), t.SourceQuote, string(t.Status), t.ContactID, createdAt,
		)
		if err != nil {
			return fmt.Errorf("replace tasks: insert: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("replace tasks: %w", err)
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context, recordingID string) ([]record.Task, error) {
	const q = `
		SELECT id, recording_id, description, owner, due_date, priority,
		       source_quote, status, contact_id, created_at
		FROM   tasks
		WHERE  recording_id = $1
		ORDER  BY created_at, id`
	rows, err := s.pool.Query(ctx, q, recordingID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (record.Task, error) {
		var (
			t        record.Task
			priority string
			status   string
		)
		err := row.Scan(
			&t.ID, &t.RecordingID, &t.Description, &t.Owner, &t.DueDate,
			&priority, &t.SourceQuote, &status, &t.ContactID, &t.CreatedAt,
		)
		t.Priority = record.TaskPriority(priority)
		t.Status = record.TaskStatus(status)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}
