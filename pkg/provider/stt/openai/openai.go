// Package openai provides an STT provider backed by the OpenAI audio
// transcriptions API.
package openai

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/lschiller/recapd/pkg/provider"
	"github.com/lschiller/recapd/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = oai.AudioModelWhisper1

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI audio API.
//
// The whisper-1 endpoint reports per-segment timestamps but no speaker
// diarization, so every segment carries speaker slot 0; speaker attribution
// for dual-track recordings is resolved downstream from the track layout.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI STT Provider.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Transcribe implements stt.Provider. It uploads the audio file and requests
// verbose JSON output so that segment timestamps are available in the raw
// response payload.
func (p *Provider) Transcribe(ctx context.Context, path string) ([]stt.Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, provider.Permanentf("openai stt: open audio file: %v", err)
	}
	defer f.Close()

	resp, err := p.client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		Model:          p.model,
		File:           f,
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, classify(err)
	}

	// The SDK's typed Transcription struct only surfaces the joined text;
	// segment timestamps live in the raw verbose payload.
	raw := resp.RawJSON()
	segs := gjson.Get(raw, "segments")
	if !segs.Exists() {
		if resp.Text == "" {
			return []stt.Segment{}, nil
		}
		return []stt.Segment{{Text: resp.Text}}, nil
	}

	var segments []stt.Segment
	segs.ForEach(func(_, s gjson.Result) bool {
		segments = append(segments, stt.Segment{
			Start: time.Duration(s.Get("start").Float() * float64(time.Second)),
			End:   time.Duration(s.Get("end").Float() * float64(time.Second)),
			Text:  s.Get("text").String(),
		})
		return true
	})
	if segments == nil {
		segments = []stt.Segment{}
	}
	return segments, nil
}

// ModelID implements stt.Provider.
func (p *Provider) ModelID() string {
	return p.model
}

// classify maps an OpenAI SDK error to the adapter error taxonomy.
// Authentication and malformed-request failures are permanent; rate limits,
// server errors, and transport failures are transient.
func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden,
			http.StatusBadRequest, http.StatusUnprocessableEntity:
			return provider.Permanentf("openai stt: %v", err)
		}
	}
	return provider.Transientf("openai stt: %v", err)
}
