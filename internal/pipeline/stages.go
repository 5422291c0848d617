package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lschiller/recapd/internal/record"
	"github.com/lschiller/recapd/pkg/provider"
	"github.com/lschiller/recapd/pkg/provider/llm"
	"github.com/lschiller/recapd/pkg/provider/stt"
)

// process drives one recording through all remaining stages. Completed stages
// are detected through their persisted artifacts (transcript, summary,
// embeddings) and skipped, which makes resuming after a crash safe: no stage
// is redone and no duplicate rows are created.
func (q *Queue) process(ctx context.Context, id string) {
	log := q.log.With(slog.String("recording_id", id))

	rec, err := q.store.GetRecording(ctx, id)
	if err != nil {
		log.Error("load recording", "error", err)
		return
	}
	switch rec.Status {
	case record.StatusComplete:
		return
	case record.StatusFailed:
		// Failed recordings re-enter only through a manual retry, which
		// resets them to processing before enqueueing.
		log.Warn("enqueued recording is in failed state, ignoring")
		return
	}

	// The retry loop runs off this local counter; the persisted value is
	// display data that trails it.
	retries := rec.RetryCount

	fail := func(stage string, cause error) {
		if ctx.Err() != nil {
			// Shutdown interrupted the stage. Leave the status untouched so
			// the next start resumes instead of surfacing a spurious failure.
			log.Info("stage interrupted by shutdown", "stage", stage)
			return
		}
		if err := q.store.MarkFailed(ctx, id, cause.Error()); err != nil {
			log.Error("persist failure state", "error", err)
		}
		q.emit(id, record.StatusFailed)
		log.Error("recording failed", "stage", stage, "retries", retries, "error", cause)
	}

	// Stage 1: transcribe.
	transcript, err := q.store.GetTranscript(ctx, id)
	switch {
	case errors.Is(err, record.ErrNotFound):
		if err := q.setStatus(ctx, id, record.StatusTranscribing); err != nil {
			log.Error("update status", "error", err)
			return
		}
		stageErr := q.runStage(ctx, id, "transcribe", &retries, func(ctx context.Context) error {
			segments, err := q.stt.Transcribe(ctx, rec.AudioPath)
			if err != nil {
				return err
			}
			t := newTranscript(id, segments)
			if err := q.store.CreateTranscript(ctx, t); err != nil && !errors.Is(err, record.ErrAlreadyExists) {
				return err
			}
			transcript = &t
			return nil
		})
		if stageErr != nil {
			fail("transcribe", stageErr)
			return
		}
	case err != nil:
		log.Error("load transcript", "error", err)
		return
	default:
		log.Info("transcript already persisted, skipping transcribe")
	}

	if err := q.setStatus(ctx, id, record.StatusSummarizing); err != nil {
		log.Error("update status", "error", err)
		return
	}

	// Stage 2: summarize.
	summary, err := q.store.GetSummary(ctx, id)
	switch {
	case errors.Is(err, record.ErrNotFound):
		stageErr := q.runStage(ctx, id, "summarize", &retries, func(ctx context.Context) error {
			s, err := q.summarize(ctx, rec, transcript.FullText)
			if err != nil {
				return err
			}
			if err := q.store.CreateSummary(ctx, *s); err != nil && !errors.Is(err, record.ErrAlreadyExists) {
				return err
			}
			summary = s
			return nil
		})
		if stageErr != nil {
			fail("summarize", stageErr)
			return
		}
	case err != nil:
		log.Error("load summary", "error", err)
		return
	default:
		log.Info("summary already persisted, skipping summarize")
	}

	// Stage 3: extract tasks. ReplaceTasks is transactional, so re-running
	// this stage on resume cannot leave duplicates.
	stageErr := q.runStage(ctx, id, "extract", &retries, func(ctx context.Context) error {
		tasks, err := extractTasks(ctx, q.llm, transcript.FullText, q.now())
		if err != nil {
			return err
		}
		return q.store.ReplaceTasks(ctx, id, tasks)
	})
	if stageErr != nil {
		fail("extract", stageErr)
		return
	}

	// Stage 4: embed transcript and summary. Each vector persists
	// individually, so a retry only redoes the missing one.
	stageErr = q.runStage(ctx, id, "embed", &retries, func(ctx context.Context) error {
		if transcript.Embedding == nil {
			vec, err := q.embedder.Embed(ctx, transcript.FullText)
			if err != nil {
				return err
			}
			if err := q.store.SetTranscriptEmbedding(ctx, id, vec); err != nil {
				return err
			}
			transcript.Embedding = vec
		}
		if summary.Embedding == nil {
			vec, err := q.embedder.Embed(ctx, summary.Text)
			if err != nil {
				return err
			}
			if err := q.store.SetSummaryEmbedding(ctx, id, vec); err != nil {
				return err
			}
			summary.Embedding = vec
		}
		return nil
	})
	if stageErr != nil {
		fail("embed", stageErr)
		return
	}

	if err := q.setStatus(ctx, id, record.StatusComplete); err != nil {
		log.Error("update status", "error", err)
		return
	}
	q.metrics.RecordingsCompleted.Add(ctx, 1)
	log.Info("recording processed", "retries", retries)
}

// runStage executes one stage with the retry policy: up to maxAttempts tries,
// waiting out the backoff schedule between them. Every failed attempt bumps
// the retry counter, both locally and in the store. Permanent errors skip the
// remaining attempts.
func (q *Queue) runStage(ctx context.Context, id, stage string, retries *int, fn func(context.Context) error) error {
	log := q.log.With(slog.String("recording_id", id), slog.String("stage", stage))

	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := fn(ctx)
		elapsed := time.Since(start)

		if err == nil {
			q.metrics.RecordStage(ctx, stage, elapsed.Seconds(), false)
			log.Info("stage complete", "attempt", attempt, "duration", elapsed)
			return nil
		}

		*retries++
		if serr := q.store.SetRetryCount(ctx, id, *retries); serr != nil {
			log.Warn("persist retry count", "error", serr)
		}

		if !provider.IsTransient(err) {
			q.metrics.RecordStage(ctx, stage, elapsed.Seconds(), true)
			log.Error("stage failed permanently", "attempt", attempt, "error", err)
			return err
		}
		if attempt >= q.maxAttempts {
			q.metrics.RecordStage(ctx, stage, elapsed.Seconds(), true)
			log.Error("stage retries exhausted", "attempts", attempt, "error", err)
			return err
		}

		delay := q.backoff[min(attempt-1, len(q.backoff)-1)]
		q.metrics.RecordStageRetry(ctx, stage)
		log.Warn("stage failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
	}
}

// setStatus persists a lifecycle transition and publishes it to subscribers.
func (q *Queue) setStatus(ctx context.Context, id string, status record.Status) error {
	if err := q.store.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	q.emit(id, status)
	return nil
}

// summarize renders the recording's prompt template and runs the LLM.
func (q *Queue) summarize(ctx context.Context, rec *record.Recording, transcriptText string) (*record.Summary, error) {
	templateID := rec.PromptTemplateID
	if templateID == "" {
		templateID = DefaultTemplateID
	}

	prompt, snapshot, err := q.prompts.Render(templateID, PromptData{
		Transcript: transcriptText,
		Context:    rec.Context,
	})
	if err != nil {
		// A template that fails to render will fail identically on every
		// attempt.
		return nil, provider.Permanent(err)
	}

	resp, err := q.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, provider.Transientf("summarize: model returned empty response")
	}

	return &record.Summary{
		ID:               uuid.NewString(),
		RecordingID:      rec.ID,
		Text:             text,
		PromptTemplateID: templateID,
		PromptSnapshot:   snapshot,
	}, nil
}

// newTranscript converts provider segments into the persisted transcript,
// rendering the merged full text with speaker labels.
func newTranscript(recordingID string, segments []stt.Segment) record.Transcript {
	segs := make([]record.Segment, len(segments))
	var b strings.Builder
	for i, s := range segments {
		segs[i] = record.Segment{
			Speaker: s.Speaker,
			Start:   s.Start,
			End:     s.End,
			Text:    s.Text,
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		if s.Speaker > 0 {
			fmt.Fprintf(&b, "Speaker %d: %s", s.Speaker, s.Text)
		} else {
			b.WriteString(s.Text)
		}
	}
	return record.Transcript{
		ID:          uuid.NewString(),
		RecordingID: recordingID,
		FullText:    b.String(),
		Segments:    segs,
	}
}
