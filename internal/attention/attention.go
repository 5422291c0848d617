// Package attention is the read model over recordings stuck in the failed
// state, exposed to the settings UI collaborator for manual recovery.
package attention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lschiller/recapd/internal/record"
)

// Enqueuer schedules a recording for processing. Implemented by the pipeline
// queue.
type Enqueuer interface {
	Enqueue(id string) bool
}

// Service lists failed recordings and handles manual retry and dismissal.
type Service struct {
	store record.Store
	queue Enqueuer
	log   *slog.Logger
}

// New constructs the attention service.
func New(store record.Store, queue Enqueuer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, queue: queue, log: log}
}

// ListFailed returns all failed, undismissed recordings, most recent first.
func (s *Service) ListFailed(ctx context.Context) ([]record.Recording, error) {
	return s.store.ListFailed(ctx)
}

// Retry resets a failed recording — retry count to zero, error message
// cleared — and re-enqueues it. The reset persists before the enqueue so a
// crash in between leaves the recording in processing, where startup
// resumption picks it up.
func (s *Service) Retry(ctx context.Context, id string) error {
	if err := s.store.ResetForRetry(ctx, id); err != nil {
		return fmt.Errorf("retry recording: %w", err)
	}
	s.queue.Enqueue(id)
	s.log.Info("manual retry", "recording_id", id)
	return nil
}

// Dismiss marks a failed recording as acknowledged without retrying it. The
// recording keeps its failed status and error message; it merely stops
// appearing in ListFailed.
func (s *Service) Dismiss(ctx context.Context, id string) error {
	rec, err := s.store.GetRecording(ctx, id)
	if err != nil {
		return fmt.Errorf("dismiss recording: %w", err)
	}
	if rec.Status != record.StatusFailed {
		return fmt.Errorf("dismiss recording %q: status is %q, only failed recordings can be dismissed", id, rec.Status)
	}
	if err := s.store.SetDismissed(ctx, id, true); err != nil {
		return fmt.Errorf("dismiss recording: %w", err)
	}
	s.log.Info("recording dismissed", "recording_id", id)
	return nil
}

// IsNotFound reports whether err stems from a missing recording, for callers
// mapping errors to HTTP statuses.
func IsNotFound(err error) bool {
	return errors.Is(err, record.ErrNotFound)
}
