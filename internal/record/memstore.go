package record

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store implementation. It backs tests and
// DSN-less development runs; data does not survive a restart.
//
// All methods are safe for concurrent use.
type MemStore struct {
	mu sync.RWMutex

	recordings  map[string]*Recording
	assignments map[string][]SpeakerAssignment
	transcripts map[string]*Transcript // keyed by recording ID
	summaries   map[string]*Summary    // keyed by recording ID
	tasks       map[string][]Task
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		recordings:  make(map[string]*Recording),
		assignments: make(map[string][]SpeakerAssignment),
		transcripts: make(map[string]*Transcript),
		summaries:   make(map[string]*Summary),
		tasks:       make(map[string][]Task),
	}
}

func (m *MemStore) CreateRecording(ctx context.Context, rec Recording) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recordings[rec.ID]; ok {
		return fmt.Errorf("recording %q: %w", rec.ID, ErrAlreadyExists)
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.recordings[rec.ID] = &rec
	return nil
}

func (m *MemStore) GetRecording(ctx context.Context, id string) (*Recording, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recordings[id]
	if !ok {
		return nil, fmt.Errorf("recording %q: %w", id, ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (m *MemStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok {
		return fmt.Errorf("recording %q: %w", id, ErrNotFound)
	}
	rec.Status = status
	rec.ErrorMessage = ""
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) MarkFailed(ctx context.Context, id, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok {
		return fmt.Errorf("recording %q: %w", id, ErrNotFound)
	}
	rec.Status = StatusFailed
	rec.ErrorMessage = errMsg
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) SetRetryCount(ctx context.Context, id string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok {
		return fmt.Errorf("recording %q: %w", id, ErrNotFound)
	}
	rec.RetryCount = count
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) ResetForRetry(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok {
		return fmt.Errorf("recording %q: %w", id, ErrNotFound)
	}
	if rec.Status != StatusFailed {
		return fmt.Errorf("recording %q: retry from status %q", id, rec.Status)
	}
	rec.Status = StatusProcessing
	rec.ErrorMessage = ""
	rec.RetryCount = 0
	rec.Dismissed = false
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) SetDismissed(ctx context.Context, id string, dismissed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recordings[id]
	if !ok {
		return fmt.Errorf("recording %q: %w", id, ErrNotFound)
	}
	rec.Dismissed = dismissed
	rec.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) ListFailed(ctx context.Context) ([]Recording, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Recording
	for _, rec := range m.recordings {
		if rec.Status == StatusFailed && !rec.Dismissed {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemStore) ListByStatus(ctx context.Context, status Status) ([]Recording, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Recording
	for _, rec := range m.recordings {
		if rec.Status == status {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) CreateSpeakerAssignments(ctx context.Context, recordingID string, assignments []SpeakerAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recordings[recordingID]; !ok {
		return fmt.Errorf("recording %q: %w", recordingID, ErrNotFound)
	}
	existing := m.assignments[recordingID]
	for _, a := range assignments {
		for _, e := range existing {
			if e.Slot == a.Slot {
				return fmt.Errorf("recording %q slot %d: %w", recordingID, a.Slot, ErrAlreadyExists)
			}
		}
		a.RecordingID = recordingID
		existing = append(existing, a)
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i].Slot < existing[j].Slot })
	m.assignments[recordingID] = existing
	return nil
}

func (m *MemStore) GetSpeakerAssignments(ctx context.Context, recordingID string) ([]SpeakerAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.assignments[recordingID]), nil
}

func (m *MemStore) CreateTranscript(ctx context.Context, t Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transcripts[t.RecordingID]; ok {
		return fmt.Errorf("transcript for recording %q: %w", t.RecordingID, ErrAlreadyExists)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.Segments = slices.Clone(t.Segments)
	m.transcripts[t.RecordingID] = &t
	return nil
}

func (m *MemStore) GetTranscript(ctx context.Context, recordingID string) (*Transcript, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transcripts[recordingID]
	if !ok {
		return nil, fmt.Errorf("transcript for recording %q: %w", recordingID, ErrNotFound)
	}
	cp := *t
	cp.Segments = slices.Clone(t.Segments)
	cp.Embedding = slices.Clone(t.Embedding)
	return &cp, nil
}

func (m *MemStore) SetTranscriptEmbedding(ctx context.Context, recordingID string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transcripts[recordingID]
	if !ok {
		return fmt.Errorf("transcript for recording %q: %w", recordingID, ErrNotFound)
	}
	t.Embedding = slices.Clone(embedding)
	return nil
}

func (m *MemStore) CreateSummary(ctx context.Context, s Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.summaries[s.RecordingID]; ok {
		return fmt.Errorf("summary for recording %q: %w", s.RecordingID, ErrAlreadyExists)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	m.summaries[s.RecordingID] = &s
	return nil
}

func (m *MemStore) GetSummary(ctx context.Context, recordingID string) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.summaries[recordingID]
	if !ok {
		return nil, fmt.Errorf("summary for recording %q: %w", recordingID, ErrNotFound)
	}
	cp := *s
	cp.Embedding = slices.Clone(s.Embedding)
	return &cp, nil
}

func (m *MemStore) SetSummaryEmbedding(ctx context.Context, recordingID string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[recordingID]
	if !ok {
		return fmt.Errorf("summary for recording %q: %w", recordingID, ErrNotFound)
	}
	s.Embedding = slices.Clone(embedding)
	return nil
}

func (m *MemStore) ReplaceTasks(ctx context.Context, recordingID string, tasks []Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recordings[recordingID]; !ok {
		return fmt.Errorf("recording %q: %w", recordingID, ErrNotFound)
	}
	now := time.Now()
	cp := make([]Task, len(tasks))
	for i, t := range tasks {
		t.RecordingID = recordingID
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		cp[i] = t
	}
	m.tasks[recordingID] = cp
	return nil
}

func (m *MemStore) ListTasks(ctx context.Context, recordingID string) ([]Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.tasks[recordingID]), nil
}

func (m *MemStore) SearchByVector(ctx context.Context, vector []float32, threshold float64, limit int, f SearchFilter) ([]SearchHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []SearchHit
	for recordingID, t := range m.transcripts {
		if t.Embedding == nil {
			continue
		}
		hit := SearchHit{
			Type:        UnitTranscript,
			ID:          t.ID,
			RecordingID: recordingID,
			Text:        t.FullText,
			ContactID:   m.contactFor(recordingID),
			Similarity:  cosineSimilarity(vector, t.Embedding),
		}
		if m.matches(hit, t.CreatedAt, threshold, f) {
			hits = append(hits, hit)
		}
	}
	for recordingID, s := range m.summaries {
		if s.Embedding == nil {
			continue
		}
		hit := SearchHit{
			Type:        UnitSummary,
			ID:          s.ID,
			RecordingID: recordingID,
			Text:        s.Text,
			ContactID:   m.contactFor(recordingID),
			Similarity:  cosineSimilarity(vector, s.Embedding),
		}
		if m.matches(hit, s.CreatedAt, threshold, f) {
			hits = append(hits, hit)
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	if hits == nil {
		hits = []SearchHit{}
	}
	return hits, nil
}

// contactFor resolves the contact for search hits: the lowest non-owner slot
// assignment of the recording, matching what the SQL store joins on.
func (m *MemStore) contactFor(recordingID string) string {
	for _, a := range m.assignments[recordingID] {
		if a.Slot != 1 {
			return a.ContactID
		}
	}
	return ""
}

func (m *MemStore) matches(hit SearchHit, createdAt time.Time, threshold float64, f SearchFilter) bool {
	if hit.Similarity < threshold {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, hit.Type) {
		return false
	}
	if f.ContactID != "" && hit.ContactID != f.ContactID {
		return false
	}
	if !f.After.IsZero() && !createdAt.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !createdAt.Before(f.Before) {
		return false
	}
	return true
}

func (m *MemStore) Close() error { return nil }

// cosineSimilarity computes the cosine similarity of two vectors. Mismatched
// lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
