// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to return pre-canned transcription segments without a live
// backend and to verify which audio files were submitted.
//
// Example:
//
//	p := &mock.Provider{
//	    Segments: []stt.Segment{{Speaker: 1, Text: "hello"}},
//	}
//	segs, _ := p.Transcribe(ctx, "/tmp/call.wav")
package mock

import (
	"context"
	"sync"

	"github.com/lschiller/recapd/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Path is the audio file path passed to Transcribe.
	Path string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Segments is returned by Transcribe. If nil, an empty slice is returned.
	Segments []stt.Segment

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// ErrFunc, when set, is consulted per call with the 1-based call number.
	// Takes precedence over Err. Useful for fail-N-times-then-succeed tests.
	ErrFunc func(call int) error

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the configured segments or error.
func (p *Provider) Transcribe(ctx context.Context, path string) ([]stt.Segment, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Path: path})
	call := len(p.TranscribeCalls)
	errFunc := p.ErrFunc
	canned := p.Err
	segments := p.Segments
	p.mu.Unlock()

	// Invoke ErrFunc without holding the lock: tests use blocking ErrFuncs
	// and must still be able to call CallCount concurrently.
	if errFunc != nil {
		if err := errFunc(call); err != nil {
			return nil, err
		}
	} else if canned != nil {
		return nil, canned
	}
	if segments == nil {
		return []stt.Segment{}, nil
	}
	return segments, nil
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// CallCount returns the number of Transcribe invocations so far. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
