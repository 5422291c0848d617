package record

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newRecording(id string) Recording {
	return Recording{
		ID:               id,
		AudioPath:        "/var/recordings/" + id + ".ogg",
		Duration:         42 * time.Minute,
		PromptTemplateID: "sales-call",
		Status:           StatusProcessing,
	}
}

func TestMemStoreRecordingLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	if err := store.CreateRecording(ctx, newRecording("rec-1")); err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}
	if err := store.CreateRecording(ctx, newRecording("rec-1")); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate CreateRecording = %v, want ErrAlreadyExists", err)
	}

	rec, err := store.GetRecording(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if rec.Status != StatusProcessing {
		t.Errorf("Status = %s, want processing", rec.Status)
	}

	if err := store.UpdateStatus(ctx, "rec-1", StatusTranscribing); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if err := store.MarkFailed(ctx, "rec-1", "whisper: connection refused"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := store.SetRetryCount(ctx, "rec-1", 3); err != nil {
		t.Fatalf("SetRetryCount: %v", err)
	}

	rec, _ = store.GetRecording(ctx, "rec-1")
	if rec.Status != StatusFailed || rec.ErrorMessage != "whisper: connection refused" || rec.RetryCount != 3 {
		t.Fatalf("after failure: status=%s error=%q retries=%d", rec.Status, rec.ErrorMessage, rec.RetryCount)
	}

	// Manual retry clears everything in one step.
	if err := store.ResetForRetry(ctx, "rec-1"); err != nil {
		t.Fatalf("ResetForRetry: %v", err)
	}
	rec, _ = store.GetRecording(ctx, "rec-1")
	if rec.Status != StatusProcessing || rec.ErrorMessage != "" || rec.RetryCount != 0 {
		t.Fatalf("after retry: status=%s error=%q retries=%d", rec.Status, rec.ErrorMessage, rec.RetryCount)
	}

	// Retrying a non-failed recording is rejected.
	if err := store.ResetForRetry(ctx, "rec-1"); err == nil {
		t.Fatal("ResetForRetry on processing recording succeeded, want error")
	}

	if _, err := store.GetRecording(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetRecording(nope) = %v, want ErrNotFound", err)
	}
}

func TestMemStoreErrorMessageClearedOnStatusChange(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	_ = store.CreateRecording(ctx, newRecording("rec-1"))
	_ = store.MarkFailed(ctx, "rec-1", "boom")
	_ = store.ResetForRetry(ctx, "rec-1")
	_ = store.UpdateStatus(ctx, "rec-1", StatusTranscribing)

	rec, _ := store.GetRecording(ctx, "rec-1")
	if rec.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q after status change, want empty", rec.ErrorMessage)
	}
}

func TestMemStoreListFailed(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	for _, id := range []string{"a", "b", "c"} {
		_ = store.CreateRecording(ctx, newRecording(id))
	}
	_ = store.MarkFailed(ctx, "a", "x")
	_ = store.MarkFailed(ctx, "b", "y")
	_ = store.SetDismissed(ctx, "b", true)

	failed, err := store.ListFailed(ctx)
	if err != nil {
		t.Fatalf("ListFailed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "a" {
		t.Fatalf("ListFailed = %+v, want only recording a", failed)
	}
}

func TestMemStoreTranscriptUniquePerRecording(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	_ = store.CreateRecording(ctx, newRecording("rec-1"))

	tr := Transcript{
		ID:          "tr-1",
		RecordingID: "rec-1",
		FullText:    "hello world",
		Segments: []Segment{
			{Speaker: 1, Start: 0, End: 2 * time.Second, Text: "hello"},
			{Speaker: 2, Start: 2 * time.Second, End: 4 * time.Second, Text: "world"},
		},
	}
	if err := store.CreateTranscript(ctx, tr); err != nil {
		t.Fatalf("CreateTranscript: %v", err)
	}

	tr.ID = "tr-2"
	if err := store.CreateTranscript(ctx, tr); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("second CreateTranscript = %v, want ErrAlreadyExists", err)
	}

	got, err := store.GetTranscript(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetTranscript: %v", err)
	}
	if got.ID != "tr-1" || len(got.Segments) != 2 || got.Segments[1].Speaker != 2 {
		t.Fatalf("GetTranscript = %+v", got)
	}

	if err := store.SetTranscriptEmbedding(ctx, "rec-1", []float32{1, 0, 0}); err != nil {
		t.Fatalf("SetTranscriptEmbedding: %v", err)
	}
	got, _ = store.GetTranscript(ctx, "rec-1")
	if len(got.Embedding) != 3 {
		t.Fatalf("Embedding = %v, want 3 dimensions", got.Embedding)
	}
}

func TestMemStoreReplaceTasksIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	_ = store.CreateRecording(ctx, newRecording("rec-1"))

	first := []Task{
		{ID: "t-1", Description: "send proposal", Owner: "Me", Priority: PriorityHigh, Status: TaskOpen},
		{ID: "t-2", Description: "book follow-up", Owner: "Dana", Priority: PriorityMedium, Status: TaskOpen},
	}
	if err := store.ReplaceTasks(ctx, "rec-1", first); err != nil {
		t.Fatalf("ReplaceTasks: %v", err)
	}

	// A resumed run replaces rather than appends.
	if err := store.ReplaceTasks(ctx, "rec-1", first); err != nil {
		t.Fatalf("second ReplaceTasks: %v", err)
	}
	tasks, _ := store.ListTasks(ctx, "rec-1")
	if len(tasks) != 2 {
		t.Fatalf("ListTasks returned %d tasks, want 2", len(tasks))
	}
}

func TestMemStoreSearchByVector(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	add := func(id, contactID string, transcriptVec, summaryVec []float32, createdAt time.Time) {
		t.Helper()
		rec := newRecording(id)
		rec.CreatedAt = createdAt
		_ = store.CreateRecording(ctx, rec)
		if contactID != "" {
			_ = store.CreateSpeakerAssignments(ctx, id, []SpeakerAssignment{
				{Slot: 1, ContactID: "owner"},
				{Slot: 2, ContactID: contactID},
			})
		}
		_ = store.CreateTranscript(ctx, Transcript{ID: "tr-" + id, RecordingID: id, FullText: "transcript " + id, CreatedAt: createdAt})
		_ = store.SetTranscriptEmbedding(ctx, id, transcriptVec)
		_ = store.CreateSummary(ctx, Summary{ID: "sum-" + id, RecordingID: id, Text: "summary " + id, CreatedAt: createdAt})
		_ = store.SetSummaryEmbedding(ctx, id, summaryVec)
	}

	day := 24 * time.Hour
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	add("r1", "contact-7", []float32{1, 0, 0}, []float32{0.9, 0.1, 0}, base)
	add("r2", "contact-9", []float32{0, 1, 0}, []float32{0, 0.9, 0.1}, base.Add(day))

	query := []float32{1, 0, 0}

	t.Run("ranked above threshold", func(t *testing.T) {
		hits, err := store.SearchByVector(ctx, query, 0.7, 10, SearchFilter{})
		if err != nil {
			t.Fatalf("SearchByVector: %v", err)
		}
		// Only r1's transcript and summary are similar enough.
		if len(hits) != 2 {
			t.Fatalf("got %d hits, want 2: %+v", len(hits), hits)
		}
		if hits[0].Similarity < hits[1].Similarity {
			t.Error("hits not ordered by descending similarity")
		}
		if hits[0].RecordingID != "r1" || hits[0].Type != UnitTranscript {
			t.Errorf("top hit = %+v, want r1 transcript", hits[0])
		}
		if hits[0].ContactID != "contact-7" {
			t.Errorf("ContactID = %q, want contact-7", hits[0].ContactID)
		}
	})

	t.Run("limit", func(t *testing.T) {
		hits, _ := store.SearchByVector(ctx, query, 0.0, 1, SearchFilter{})
		if len(hits) != 1 {
			t.Fatalf("got %d hits, want 1", len(hits))
		}
	})

	t.Run("type filter", func(t *testing.T) {
		hits, _ := store.SearchByVector(ctx, query, 0.0, 10, SearchFilter{Types: []UnitType{UnitSummary}})
		for _, h := range hits {
			if h.Type != UnitSummary {
				t.Errorf("hit type = %s, want summary", h.Type)
			}
		}
	})

	t.Run("contact filter", func(t *testing.T) {
		hits, _ := store.SearchByVector(ctx, query, 0.0, 10, SearchFilter{ContactID: "contact-9"})
		for _, h := range hits {
			if h.RecordingID != "r2" {
				t.Errorf("hit recording = %s, want r2", h.RecordingID)
			}
		}
		if len(hits) == 0 {
			t.Fatal("no hits for contact-9")
		}
	})

	t.Run("time filter", func(t *testing.T) {
		hits, _ := store.SearchByVector(ctx, query, 0.0, 10, SearchFilter{After: base.Add(12 * time.Hour)})
		for _, h := range hits {
			if h.RecordingID != "r2" {
				t.Errorf("hit recording = %s, want r2 (created after cutoff)", h.RecordingID)
			}
		}
	})

	t.Run("empty corpus", func(t *testing.T) {
		empty := NewMemStore()
		hits, err := empty.SearchByVector(ctx, query, 0.7, 10, SearchFilter{})
		if err != nil {
			t.Fatalf("SearchByVector on empty store: %v", err)
		}
		if len(hits) != 0 {
			t.Fatalf("got %d hits from empty store", len(hits))
		}
	})
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("cosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}
