// Package pipeline drives recordings through the processing stages:
// transcribe, summarize, extract tasks, and embed.
//
// The [Queue] owns the per-recording state machine. Each accepted recording
// runs as an independent unit of work on its own goroutine, gated by a
// weighted semaphore that bounds overall concurrency. Work within one
// recording is strictly sequential; recordings never block each other, and
// one recording's failure never aborts another's progress.
//
// Partial results persist eagerly: the transcript is written before the
// summary is attempted, and so on. After a crash the queue resumes each
// interrupted recording at its next incomplete stage — completed stages are
// detected through their persisted artifacts and never redone.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lschiller/recapd/internal/observe"
	"github.com/lschiller/recapd/internal/record"
	"github.com/lschiller/recapd/pkg/provider/embeddings"
	"github.com/lschiller/recapd/pkg/provider/llm"
	"github.com/lschiller/recapd/pkg/provider/stt"
)

// StatusEvent is one lifecycle transition of a recording, published to
// subscribers so UI collaborators can observe progress without polling.
type StatusEvent struct {
	RecordingID string
	Status      record.Status
}

// defaultBackoff is the delay schedule between automatic stage retries.
var defaultBackoff = []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}

// jobState tracks one accepted recording from enqueue to completion.
type jobState struct {
	// running flips once a worker picks the job up; a queued job can still be
	// discarded, a running one cannot.
	running   bool
	discarded bool
}

// Queue accepts finished recordings and advances each through its state
// machine using the configured providers. Construct with [NewQueue]; there is
// no package-level instance.
type Queue struct {
	store    record.Store
	stt      stt.Provider
	llm      llm.Provider
	embedder embeddings.Provider
	prompts  *PromptCatalog
	metrics  *observe.Metrics
	log      *slog.Logger

	sem         *semaphore.Weighted
	maxAttempts int
	backoff     []time.Duration
	now         func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*jobState
	subs map[int]chan StatusEvent
	nsub int
}

// Option is a functional option for [NewQueue].
type Option func(*Queue)

// WithConcurrency bounds the number of recordings processed in parallel.
// Defaults to 2 — stage calls are long, provider-rate-limited operations, so
// a small bound keeps external API pressure predictable.
func WithConcurrency(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithBackoff overrides the retry delay schedule. The number of attempts per
// stage stays fixed; only the waits between them change. Tests use this to
// avoid real sleeps.
func WithBackoff(delays []time.Duration) Option {
	return func(q *Queue) {
		if len(delays) > 0 {
			q.backoff = delays
		}
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithClock overrides the time source used for due-date resolution. For tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue constructs a Queue wired to the given store and providers.
func NewQueue(store record.Store, sttProvider stt.Provider, llmProvider llm.Provider, embedder embeddings.Provider, prompts *PromptCatalog, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		store:       store,
		stt:         sttProvider,
		llm:         llmProvider,
		embedder:    embedder,
		prompts:     prompts,
		log:         slog.Default(),
		sem:         semaphore.NewWeighted(2),
		maxAttempts: 3,
		backoff:     defaultBackoff,
		now:         time.Now,
		baseCtx:     ctx,
		cancel:      cancel,
		jobs:        make(map[string]*jobState),
		subs:        make(map[int]chan StatusEvent),
	}
	for _, o := range opts {
		o(q)
	}
	if q.metrics == nil {
		q.metrics = observe.DefaultMetrics()
	}
	return q
}

// Enqueue accepts a recording into the pipeline. It is idempotent and
// non-blocking: enqueuing an identifier already in flight is a no-op, as is
// enqueuing a recording that has already completed (detected when the worker
// loads it). Reports whether a new unit of work was scheduled.
func (q *Queue) Enqueue(id string) bool {
	q.mu.Lock()
	if _, ok := q.jobs[id]; ok {
		q.mu.Unlock()
		return false
	}
	job := &jobState{}
	q.jobs[id] = job
	q.mu.Unlock()

	q.metrics.RecordingsEnqueued.Add(q.baseCtx, 1)
	q.wg.Add(1)
	go q.work(id, job)
	return true
}

// Discard removes a recording from the queue if it has not started
// processing yet. An in-flight job runs to completion or to its natural
// failure — stage calls are not cheaply interruptible. Reports whether the
// job was removed.
func (q *Queue) Discard(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok || job.running {
		return false
	}
	job.discarded = true
	delete(q.jobs, id)
	return true
}

// InFlight returns the identifiers of all recordings currently queued or
// being processed.
func (q *Queue) InFlight() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, len(q.jobs))
	for id := range q.jobs {
		ids = append(ids, id)
	}
	return ids
}

// Resume re-enqueues every recording left in a non-terminal state by a
// previous process. Call once at startup after the store is ready.
func (q *Queue) Resume(ctx context.Context) error {
	for _, status := range []record.Status{record.StatusProcessing, record.StatusTranscribing, record.StatusSummarizing} {
		recs, err := q.store.ListByStatus(ctx, status)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if q.Enqueue(rec.ID) {
				q.log.Info("resuming interrupted recording",
					"recording_id", rec.ID, "status", string(status))
			}
		}
	}
	return nil
}

// Subscribe returns a channel of status transitions and a cancel function
// that must be called when the subscriber is done. Events are delivered
// best-effort: a subscriber that stops draining loses events rather than
// blocking the pipeline.
func (q *Queue) Subscribe() (<-chan StatusEvent, func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nsub
	q.nsub++
	ch := make(chan StatusEvent, 64)
	q.subs[id] = ch

	cancel := func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if sub, ok := q.subs[id]; ok {
			delete(q.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// emit publishes a status transition to all subscribers without blocking.
func (q *Queue) emit(id string, status record.Status) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ch := range q.subs {
		select {
		case ch <- StatusEvent{RecordingID: id, Status: status}:
		default:
		}
	}
}

// Shutdown cancels the queue's base context and waits for in-flight
// work to settle, up to ctx's deadline. In-flight stage calls observe the
// cancelled base context and return early through their providers.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.cancel()
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// work is the per-recording goroutine: it waits for a semaphore slot, checks
// the job was not discarded while queued, and runs the stages.
func (q *Queue) work(id string, job *jobState) {
	defer q.wg.Done()

	if err := q.sem.Acquire(q.baseCtx, 1); err != nil {
		// Shutdown before the job started.
		q.mu.Lock()
		delete(q.jobs, id)
		q.mu.Unlock()
		return
	}
	defer q.sem.Release(1)

	q.mu.Lock()
	if job.discarded {
		q.mu.Unlock()
		return
	}
	job.running = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.jobs, id)
		q.mu.Unlock()
	}()

	q.metrics.InFlightRecordings.Add(q.baseCtx, 1)
	defer q.metrics.InFlightRecordings.Add(q.baseCtx, -1)

	q.process(q.baseCtx, id)
}
