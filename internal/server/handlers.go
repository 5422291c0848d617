package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lschiller/recapd/internal/attention"
	"github.com/lschiller/recapd/internal/record"
	"github.com/lschiller/recapd/internal/retrieval"
	"github.com/lschiller/recapd/pkg/provider/llm"
)

// ── DTOs ─────────────────────────────────────────────────────────────────────

type speakerJSON struct {
	Slot      int    `json:"slot"`
	ContactID string `json:"contact_id"`
}

type createRecordingRequest struct {
	// ID is optional; a UUID is generated when absent.
	ID               string        `json:"id"`
	AudioPath        string        `json:"audio_path"`
	DurationSeconds  float64       `json:"duration_seconds"`
	PromptTemplateID string        `json:"prompt_template_id"`
	Context          string        `json:"context"`
	Speakers         []speakerJSON `json:"speakers"`
}

type recordingJSON struct {
	ID               string    `json:"id"`
	AudioPath        string    `json:"audio_path"`
	DurationSeconds  float64   `json:"duration_seconds"`
	PromptTemplateID string    `json:"prompt_template_id,omitempty"`
	Status           string    `json:"status"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	RetryCount       int       `json:"retry_count"`
	Context          string    `json:"context,omitempty"`
	Dismissed        bool      `json:"dismissed,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toRecordingJSON(rec *record.Recording) recordingJSON {
	return recordingJSON{
		ID:               rec.ID,
		AudioPath:        rec.AudioPath,
		DurationSeconds:  rec.Duration.Seconds(),
		PromptTemplateID: rec.PromptTemplateID,
		Status:           string(rec.Status),
		ErrorMessage:     rec.ErrorMessage,
		RetryCount:       rec.RetryCount,
		Context:          rec.Context,
		Dismissed:        rec.Dismissed,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
}

type segmentJSON struct {
	Speaker      int     `json:"speaker"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Text         string  `json:"text"`
}

type transcriptJSON struct {
	ID          string        `json:"id"`
	RecordingID string        `json:"recording_id"`
	FullText    string        `json:"full_text"`
	Segments    []segmentJSON `json:"segments"`
	CreatedAt   time.Time     `json:"created_at"`
}

type summaryJSON struct {
	ID               string    `json:"id"`
	RecordingID      string    `json:"recording_id"`
	Text             string    `json:"text"`
	PromptTemplateID string    `json:"prompt_template_id"`
	CreatedAt        time.Time `json:"created_at"`
}

type taskJSON struct {
	ID          string     `json:"id"`
	RecordingID string     `json:"recording_id"`
	Description string     `json:"description"`
	Owner       string     `json:"owner"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    string     `json:"priority"`
	SourceQuote string     `json:"source_quote,omitempty"`
	Status      string     `json:"status"`
	ContactID   string     `json:"contact_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ── Recordings ───────────────────────────────────────────────────────────────

func (s *Server) handleCreateRecording(w http.ResponseWriter, r *http.Request) {
	var req createRecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AudioPath == "" {
		s.writeError(w, http.StatusBadRequest, "audio_path is required")
		return
	}
	if req.DurationSeconds <= 0 {
		s.writeError(w, http.StatusBadRequest, "duration_seconds must be positive")
		return
	}
	for _, sp := range req.Speakers {
		if sp.Slot < 1 {
			s.writeError(w, http.StatusBadRequest, "speaker slot must be >= 1")
			return
		}
		if sp.ContactID == "" {
			s.writeError(w, http.StatusBadRequest, "speaker contact_id is required")
			return
		}
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	rec := record.Recording{
		ID:               id,
		AudioPath:        req.AudioPath,
		Duration:         time.Duration(req.DurationSeconds * float64(time.Second)),
		PromptTemplateID: req.PromptTemplateID,
		Status:           record.StatusProcessing,
		Context:          req.Context,
	}
	if err := s.store.CreateRecording(r.Context(), rec); err != nil {
		s.storeError(w, err)
		return
	}
	if len(req.Speakers) > 0 {
		assignments := make([]record.SpeakerAssignment, 0, len(req.Speakers))
		for _, sp := range req.Speakers {
			assignments = append(assignments, record.SpeakerAssignment{
				RecordingID: id,
				Slot:        sp.Slot,
				ContactID:   sp.ContactID,
			})
		}
		if err := s.store.CreateSpeakerAssignments(r.Context(), id, assignments); err != nil {
			s.storeError(w, err)
			return
		}
	}

	s.queue.Enqueue(id)
	s.log.Info("recording accepted", "recording_id", id, "duration", rec.Duration)

	stored, err := s.store.GetRecording(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, toRecordingJSON(stored))
}

func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetRecording(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toRecordingJSON(rec))
}

func (s *Server) handleDiscardRecording(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetRecording(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	discarded := s.queue.Discard(id)
	if !discarded {
		s.writeError(w, http.StatusConflict, "recording is not queued or already running")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"discarded": true})
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	tr, err := s.store.GetTranscript(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	out := transcriptJSON{
		ID:          tr.ID,
		RecordingID: tr.RecordingID,
		FullText:    tr.FullText,
		Segments:    make([]segmentJSON, 0, len(tr.Segments)),
		CreatedAt:   tr.CreatedAt,
	}
	for _, seg := range tr.Segments {
		out.Segments = append(out.Segments, segmentJSON{
			Speaker:      seg.Speaker,
			StartSeconds: seg.Start.Seconds(),
			EndSeconds:   seg.End.Seconds(),
			Text:         seg.Text,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.store.GetSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summaryJSON{
		ID:               sum.ID,
		RecordingID:      sum.RecordingID,
		Text:             sum.Text,
		PromptTemplateID: sum.PromptTemplateID,
		CreatedAt:        sum.CreatedAt,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetRecording(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	tasks, err := s.store.ListTasks(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	out := make([]taskJSON, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, taskJSON{
			ID:          task.ID,
			RecordingID: task.RecordingID,
			Description: task.Description,
			Owner:       task.Owner,
			DueDate:     task.DueDate,
			Priority:    string(task.Priority),
			SourceQuote: task.SourceQuote,
			Status:      string(task.Status),
			ContactID:   task.ContactID,
			CreatedAt:   task.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// ── Attention surface ────────────────────────────────────────────────────────

func (s *Server) handleListAttention(w http.ResponseWriter, r *http.Request) {
	recs, err := s.attention.ListFailed(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	out := make([]recordingJSON, 0, len(recs))
	for i := range recs {
		out = append(out, toRecordingJSON(&recs[i]))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	err := s.attention.Retry(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": string(record.StatusProcessing)})
	case attention.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, "not found")
	default:
		s.writeError(w, http.StatusConflict, err.Error())
	}
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	err := s.attention.Dismiss(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case attention.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, "not found")
	default:
		s.writeError(w, http.StatusConflict, err.Error())
	}
}

// ── Question answering ───────────────────────────────────────────────────────

type askRequest struct {
	Question string `json:"question"`
	History  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"history"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error:  "question answering is not configured",
			Reason: string(retrieval.ReasonMissingCredential),
		})
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	history := make([]llm.Message, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	answer, err := s.engine.Answer(r.Context(), req.Question, history)
	if err != nil {
		var prereq *retrieval.PrerequisiteError
		if errors.As(err, &prereq) {
			s.writeJSON(w, http.StatusServiceUnavailable, errorBody{
				Error:  prereq.Error(),
				Reason: string(prereq.Reason),
			})
			return
		}
		s.log.Error("answer failed", "err", err)
		s.writeError(w, http.StatusBadGateway, "could not answer the question, try again")
		return
	}
	s.writeJSON(w, http.StatusOK, askResponse{Answer: answer})
}
