// Package retrieval answers natural-language questions over the accumulated
// call knowledge: transcripts and summaries that carry embedding vectors.
//
// The engine embeds the query, runs a combined vector-plus-filter similarity
// search against the store, assembles the hits and the conversation history
// into one context payload, and asks the LLM for a conversational answer.
// Access is read-only; the engine holds no state between calls.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lschiller/recapd/internal/observe"
	"github.com/lschiller/recapd/internal/record"
	"github.com/lschiller/recapd/pkg/provider"
	"github.com/lschiller/recapd/pkg/provider/embeddings"
	"github.com/lschiller/recapd/pkg/provider/llm"
)

// PrerequisiteReason identifies which precondition of a retrieval query is
// unmet. Surfaced as a structured reason so the caller can render an
// actionable message instead of a generic failure.
type PrerequisiteReason string

const (
	// ReasonMissingCredential means the embedding or LLM service rejected the
	// configured credentials (or none are configured).
	ReasonMissingCredential PrerequisiteReason = "missing_credential"

	// ReasonSearchUnavailable means the store could not execute the
	// similarity search.
	ReasonSearchUnavailable PrerequisiteReason = "search_unavailable"
)

// PrerequisiteError reports an unmet retrieval precondition. A query against
// an empty corpus is NOT a prerequisite error — it produces a graceful
// nothing-found answer.
type PrerequisiteError struct {
	Reason PrerequisiteReason
	Err    error
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("retrieval prerequisite (%s): %v", e.Reason, e.Err)
}

func (e *PrerequisiteError) Unwrap() error { return e.Err }

// EmptyCorpusAnswer is returned verbatim when no embedded content exists (or
// nothing clears the similarity threshold). Deterministic on purpose: no LLM
// call is worth making without retrieved context.
const EmptyCorpusAnswer = "I couldn't find anything in your recorded conversations related to that. " +
	"Once more calls are recorded and processed, I'll be able to answer questions about them."

// answerSystemPrompt frames the LLM call. Retrieved chunks are injected
// below the instructions.
const answerSystemPrompt = `You answer questions about the user's recorded business conversations.

Base your answer strictly on the conversation excerpts provided below. When
the excerpts do not contain the answer, say so plainly instead of guessing.
Refer to calls by their participants and dates when that information appears
in the excerpts.

Conversation excerpts:
%s`

// Engine is the retrieval-augmented answering service. Construct with [New].
type Engine struct {
	store    record.Store
	llm      llm.Provider
	embedder embeddings.Provider
	metrics  *observe.Metrics
	log      *slog.Logger

	topK             int
	threshold        float64
	maxContextTokens int
	now              func() time.Time
}

// Option is a functional option for [New].
type Option func(*Engine)

// WithTopK caps how many search hits feed the context window. Defaults to 15.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithThreshold sets the minimum cosine similarity a hit must reach.
// Defaults to 0.7.
func WithThreshold(t float64) Option {
	return func(e *Engine) { e.threshold = t }
}

// WithMaxContextTokens bounds the token budget of the assembled context
// payload. Defaults to 6000.
func WithMaxContextTokens(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxContextTokens = n
		}
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source used to resolve relative date phrases
// in queries. For tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New constructs an Engine over the given store and providers.
func New(store record.Store, llmProvider llm.Provider, embedder embeddings.Provider, opts ...Option) *Engine {
	e := &Engine{
		store:            store,
		llm:              llmProvider,
		embedder:         embedder,
		log:              slog.Default(),
		topK:             15,
		threshold:        0.7,
		maxContextTokens: 6000,
		now:              time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Answer embeds the query, retrieves the most similar transcript and summary
// chunks, and asks the LLM to answer using them plus the conversation
// history. Unmet preconditions come back as a [*PrerequisiteError]; an empty
// corpus or a query with no sufficiently similar content yields
// [EmptyCorpusAnswer] with a nil error.
func (e *Engine) Answer(ctx context.Context, query string, history []llm.Message) (string, error) {
	start := time.Now()
	defer func() {
		e.metrics.RetrievalDuration.Record(ctx, time.Since(start).Seconds())
	}()

	filter := impliedFilter(query, e.now())

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if provider.IsPermanent(err) {
			return "", &PrerequisiteError{Reason: ReasonMissingCredential, Err: err}
		}
		return "", fmt.Errorf("embed query: %w", err)
	}

	hits, err := e.store.SearchByVector(ctx, vec, e.threshold, e.topK, filter)
	if err != nil {
		return "", &PrerequisiteError{Reason: ReasonSearchUnavailable, Err: err}
	}
	if len(hits) == 0 {
		e.log.Info("retrieval found no content above threshold",
			"threshold", e.threshold, "query_len", len(query))
		return EmptyCorpusAnswer, nil
	}

	systemPrompt, err := e.assembleContext(hits, history, query)
	if err != nil {
		return "", err
	}

	messages := append(append([]llm.Message{}, history...), llm.Message{
		Role:    llm.RoleUser,
		Content: query,
	})
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     messages,
	})
	if err != nil {
		if provider.IsPermanent(err) {
			return "", &PrerequisiteError{Reason: ReasonMissingCredential, Err: err}
		}
		return "", fmt.Errorf("answer query: %w", err)
	}

	e.log.Info("retrieval answered query",
		"hits", len(hits),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration", time.Since(start))
	return strings.TrimSpace(resp.Content), nil
}

// assembleContext renders the retrieved hits into the system prompt, dropping
// the least similar hits when the history plus context would blow the token
// budget. Hits arrive ordered by descending similarity and are kept in that
// order.
func (e *Engine) assembleContext(hits []record.SearchHit, history []llm.Message, query string) (string, error) {
	for len(hits) > 0 {
		prompt := fmt.Sprintf(answerSystemPrompt, renderHits(hits))
		probe := append(append([]llm.Message{{Role: llm.RoleSystem, Content: prompt}}, history...),
			llm.Message{Role: llm.RoleUser, Content: query})
		tokens, err := e.llm.CountTokens(probe)
		if err != nil {
			return "", fmt.Errorf("count context tokens: %w", err)
		}
		if tokens <= e.maxContextTokens {
			return prompt, nil
		}
		hits = hits[:len(hits)-1]
	}
	return "", errors.New("retrieval: context budget too small for any search hit")
}

// renderHits formats the search hits as numbered excerpts.
func renderHits(hits []record.SearchHit) string {
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (%s, similarity %.2f)\n%s", i+1, h.Type, h.Similarity, h.Text)
	}
	return b.String()
}
