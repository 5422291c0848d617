package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// statusEventJSON is the SSE payload for a pipeline status change.
type statusEventJSON struct {
	RecordingID string `json:"recording_id"`
	Status      string `json:"status"`
}

// handleEvents streams pipeline status changes as Server-Sent Events. The
// stream ends when the client disconnects or the server shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := s.queue.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(statusEventJSON{
				RecordingID: ev.RecordingID,
				Status:      string(ev.Status),
			})
			if err != nil {
				s.log.Error("marshal status event", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
