// Package postgres provides the PostgreSQL-backed implementation of
// [record.Store].
//
// Recordings and their derived artifacts live in five tables tied together
// with ON DELETE CASCADE foreign keys, so deleting a recording row removes
// its transcript, summary, tasks, and speaker assignments in one statement.
// The pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlRecordings = `
CREATE TABLE IF NOT EXISTS recordings (
    id                 TEXT         PRIMARY KEY,
    audio_path         TEXT         NOT NULL,
    duration_ns        BIGINT       NOT NULL DEFAULT 0,
    prompt_template_id TEXT         NOT NULL DEFAULT '',
    status             TEXT         NOT NULL,
    error_message      TEXT         NOT NULL DEFAULT '',
    retry_count        INTEGER      NOT NULL DEFAULT 0,
    context            TEXT         NOT NULL DEFAULT '',
    dismissed          BOOLEAN      NOT NULL DEFAULT FALSE,
    created_at         TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_recordings_status
    ON recordings (status);

CREATE TABLE IF NOT EXISTS speaker_assignments (
    recording_id TEXT    NOT NULL REFERENCES recordings (id) ON DELETE CASCADE,
    slot         INTEGER NOT NULL,
    contact_id   TEXT    NOT NULL,
    PRIMARY KEY (recording_id, slot)
);

CREATE TABLE IF NOT EXISTS tasks (
    id           TEXT         PRIMARY KEY,
    recording_id TEXT         NOT NULL REFERENCES recordings (id) ON DELETE CASCADE,
    description  TEXT         NOT NULL,
    owner        TEXT         NOT NULL DEFAULT '',
    due_date     TIMESTAMPTZ,
    priority     TEXT         NOT NULL DEFAULT 'medium',
    source_quote TEXT         NOT NULL DEFAULT '',
    status       TEXT         NOT NULL DEFAULT 'open',
    contact_id   TEXT         NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tasks_recording_id
    ON tasks (recording_id);
`

// ddlEmbedded returns the DDL of the two embedded-content tables with the
// vector dimension substituted. The dimension is baked into the column type
// at schema creation time.
func ddlEmbedded(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS transcripts (
    id           TEXT         PRIMARY KEY,
    recording_id TEXT         NOT NULL UNIQUE REFERENCES recordings (id) ON DELETE CASCADE,
    full_text    TEXT         NOT NULL,
    segments     JSONB        NOT NULL DEFAULT '[]',
    embedding    vector(%[1]d),
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcripts_embedding
    ON transcripts USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS summaries (
    id                 TEXT         PRIMARY KEY,
    recording_id       TEXT         NOT NULL UNIQUE REFERENCES recordings (id) ON DELETE CASCADE,
    text               TEXT         NOT NULL,
    prompt_template_id TEXT         NOT NULL DEFAULT '',
    prompt_snapshot    TEXT         NOT NULL DEFAULT '',
    embedding          vector(%[1]d),
    created_at         TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_summaries_embedding
    ON summaries USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions
// exist. It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS) and safe to call on every application start.
//
// embeddingDimensions must match the vector model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing this value after the first migration requires
// a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlRecordings,
		ddlEmbedded(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
