package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/lschiller/recapd/internal/record"
)

// SearchByVector implements [record.Store]. Transcripts and summaries are
// ranked together in one query: a UNION ALL over both embedded tables ordered
// by cosine distance to the query vector, with threshold and filter predicates
// applied in the same statement so the HNSW indexes do the heavy lifting.
//
// Each hit's contact is resolved from the recording's lowest non-owner
// speaker slot (slot 1 is the device owner).
func (s *Store) SearchByVector(ctx context.Context, vector []float32, threshold float64, limit int, f record.SearchFilter) ([]record.SearchHit, error) {
	queryVec := pgvector.NewVector(vector)

	args := []any{queryVec} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	// Cosine distance is 1 - similarity, so a similarity floor is a
	// distance ceiling.
	conditions := []string{"u.embedding <=> $1 <= " + next(1-threshold)}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		conditions = append(conditions, "u.unit_type = ANY("+next(types)+")")
	}
	if f.ContactID != "" {
		conditions = append(conditions, "u.contact_id = "+next(f.ContactID))
	}
	if !f.After.IsZero() {
		conditions = append(conditions, "u.created_at > "+next(f.After))
	}
	if !f.Before.IsZero() {
		conditions = append(conditions, "u.created_at < "+next(f.Before))
	}

	args = append(args, limit)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		WITH units AS (
		    SELECT 'transcript' AS unit_type, t.id, t.recording_id,
		           t.full_text AS text, t.embedding, t.created_at,
		           COALESCE((
		               SELECT sa.contact_id
		               FROM   speaker_assignments sa
		               WHERE  sa.recording_id = t.recording_id AND sa.slot <> 1
		               ORDER  BY sa.slot
		               LIMIT  1
		           ), '') AS contact_id
		    FROM   transcripts t
		    WHERE  t.embedding IS NOT NULL
		    UNION ALL
		    SELECT 'summary', m.id, m.recording_id,
		           m.text, m.embedding, m.created_at,
		           COALESCE((
		               SELECT sa.contact_id
		               FROM   speaker_assignments sa
		               WHERE  sa.recording_id = m.recording_id AND sa.slot <> 1
		               ORDER  BY sa.slot
		               LIMIT  1
		           ), '')
		    FROM   summaries m
		    WHERE  m.embedding IS NOT NULL
		)
		SELECT u.unit_type, u.id, u.recording_id, u.text, u.contact_id,
		       1 - (u.embedding <=> $1) AS similarity
		FROM   units u
		WHERE  %s
		ORDER  BY u.embedding <=> $1
		LIMIT  %s`, strings.Join(conditions, "\n  AND "), limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (record.SearchHit, error) {
		var (
			hit      record.SearchHit
			unitType string
		)
		err := row.Scan(&unitType, &hit.ID, &hit.RecordingID, &hit.Text, &hit.ContactID, &hit.Similarity)
		hit.Type = record.UnitType(unitType)
		return hit, err
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: scan rows: %w", err)
	}
	if hits == nil {
		hits = []record.SearchHit{}
	}
	return hits, nil
}
