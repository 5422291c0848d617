// Package server exposes the recapd HTTP API.
//
// The surface covers recording intake, artifact lookup, the needs-attention
// failure list, question answering over past calls, a status event stream,
// and the operational endpoints (/healthz, /readyz, /metrics).
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lschiller/recapd/internal/attention"
	"github.com/lschiller/recapd/internal/health"
	"github.com/lschiller/recapd/internal/observe"
	"github.com/lschiller/recapd/internal/pipeline"
	"github.com/lschiller/recapd/internal/record"
	"github.com/lschiller/recapd/internal/retrieval"
)

// Server holds the handler dependencies for the recapd HTTP API.
type Server struct {
	store     record.Store
	queue     *pipeline.Queue
	attention *attention.Service
	engine    *retrieval.Engine
	health    *health.Handler
	metrics   *observe.Metrics
	log       *slog.Logger
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithMetrics sets the metrics instruments used by the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHealth sets the health handler serving /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) {
		s.health = h
	}
}

// New creates a Server. engine may be nil when no embeddings or LLM provider
// is configured; the /v1/ask endpoint then responds 503.
func New(store record.Store, queue *pipeline.Queue, att *attention.Service, engine *retrieval.Engine, opts ...Option) *Server {
	s := &Server{
		store:     store,
		queue:     queue,
		attention: att,
		engine:    engine,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New(nil)
	}
	return s
}

// Routes returns the full API handler with tracing, logging, and request
// metrics applied to every route.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/recordings", s.handleCreateRecording)
	mux.HandleFunc("GET /v1/recordings/{id}", s.handleGetRecording)
	mux.HandleFunc("POST /v1/recordings/{id}/discard", s.handleDiscardRecording)
	mux.HandleFunc("GET /v1/recordings/{id}/transcript", s.handleGetTranscript)
	mux.HandleFunc("GET /v1/recordings/{id}/summary", s.handleGetSummary)
	mux.HandleFunc("GET /v1/recordings/{id}/tasks", s.handleListTasks)

	mux.HandleFunc("GET /v1/attention", s.handleListAttention)
	mux.HandleFunc("POST /v1/attention/{id}/retry", s.handleRetry)
	mux.HandleFunc("POST /v1/attention/{id}/dismiss", s.handleDismiss)

	mux.HandleFunc("POST /v1/ask", s.handleAsk)
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// errorBody is the JSON error envelope for all non-2xx API responses.
type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorBody{Error: msg})
}

// storeError maps store sentinel errors to API status codes.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, record.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, record.ErrAlreadyExists):
		s.writeError(w, http.StatusConflict, "already exists")
	default:
		s.log.Error("store error", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
