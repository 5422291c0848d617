// Package whisper provides a local whisper.cpp-backed STT provider.
//
// It connects to a running whisper-server binary (which exposes a REST API at
// POST /inference) and submits the entire recording file as one batch
// inference request, asking for verbose JSON output so that per-segment
// timestamps are available.
//
// whisper.cpp performs no speaker diarization, so every returned segment
// carries speaker slot 0. Deployments that need speaker attribution should use
// a diarizing backend and fall back to whisper for offline use.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	segments, err := p.Transcribe(ctx, "/recordings/call_001.wav")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/lschiller/recapd/pkg/provider"
	"github.com/lschiller/recapd/pkg/provider/stt"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 5 * time.Minute
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Long recordings need a
// generous budget; the default is 5 minutes.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements stt.Provider backed by a local whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. It uploads the audio file at path to the
// whisper.cpp /inference endpoint as multipart/form-data and parses the
// verbose JSON response into timestamped segments.
func (p *Provider) Transcribe(ctx context.Context, path string) ([]stt.Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		// A missing or unreadable file will not heal on retry.
		return nil, provider.Permanentf("whisper: open audio file: %v", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, provider.Permanentf("whisper: create form file: %v", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, provider.Permanentf("whisper: read audio file: %v", err)
	}

	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, provider.Permanentf("whisper: write form field: %v", err)
	}
	if p.language != "" {
		if err := mw.WriteField("language", p.language); err != nil {
			return nil, provider.Permanentf("whisper: write form field: %v", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return nil, provider.Permanentf("whisper: write form field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, provider.Permanentf("whisper: close multipart writer: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return nil, provider.Permanentf("whisper: create request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, provider.Transientf("whisper: http request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Transientf("whisper: read response body: %v", err)
	}

	var result struct {
		Text     string `json:"text"`
		Segments []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Text  string  `json:"text"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, provider.Transientf("whisper: parse JSON response: %v", err)
	}

	segments := make([]stt.Segment, 0, len(result.Segments))
	for _, s := range result.Segments {
		segments = append(segments, stt.Segment{
			Start: time.Duration(s.Start * float64(time.Second)),
			End:   time.Duration(s.End * float64(time.Second)),
			Text:  s.Text,
		})
	}
	return segments, nil
}

// ModelID implements stt.Provider.
func (p *Provider) ModelID() string {
	if p.model == "" {
		return "whisper.cpp/server-default"
	}
	return p.model
}

// classifyStatus maps an HTTP status code to a classified adapter error.
// 429 and 5xx are retryable; other non-200 codes indicate a request the server
// will never accept.
func classifyStatus(code int) error {
	err := fmt.Errorf("whisper: server returned HTTP %d", code)
	if code == http.StatusTooManyRequests || code >= 500 {
		return provider.Transient(err)
	}
	return provider.Permanent(err)
}
