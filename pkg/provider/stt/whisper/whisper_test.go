package whisper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lschiller/recapd/pkg/provider"
)

// writeTempAudio creates a small fake audio file and returns its path.
func writeTempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "call.wav")
	if err := os.WriteFile(path, []byte("RIFF fake audio"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscribe_ParsesSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format = %q, want verbose_json", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"text": "Hello there. General Kenobi.",
			"segments": [
				{"start": 0.0, "end": 1.5, "text": "Hello there."},
				{"start": 1.5, "end": 3.0, "text": "General Kenobi."}
			]
		}`))
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	segments, err := p.Transcribe(context.Background(), writeTempAudio(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}
	if segments[1].Start != 1500*time.Millisecond {
		t.Errorf("segment start = %v, want 1.5s", segments[1].Start)
	}
	if segments[1].Text != "General Kenobi." {
		t.Errorf("segment text = %q", segments[1].Text)
	}
}

func TestTranscribe_MissingFileIsPermanent(t *testing.T) {
	p, err := New("http://localhost:1")
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Transcribe(context.Background(), "/does/not/exist.wav")
	if err == nil {
		t.Fatal("expected error")
	}
	if !provider.IsPermanent(err) {
		t.Errorf("missing file should be permanent, got %v", err)
	}
}

func TestTranscribe_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Transcribe(context.Background(), writeTempAudio(t))
	if !provider.IsTransient(err) || provider.IsPermanent(err) {
		t.Errorf("HTTP 503 should be transient, got %v", err)
	}
}

func TestTranscribe_BadRequestIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Transcribe(context.Background(), writeTempAudio(t))
	if !provider.IsPermanent(err) {
		t.Errorf("HTTP 422 should be permanent, got %v", err)
	}
}

func TestNew_RequiresServerURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
}
