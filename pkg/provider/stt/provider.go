// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (e.g., the OpenAI audio
// API or a local whisper.cpp server) and exposes a uniform file-in,
// segments-out interface. Recordings are dual-track business calls; providers
// that support speaker diarization report per-segment speaker slots, with
// slot 1 reserved for the device owner.
//
// Implementations must be safe for concurrent use — the processing queue may
// transcribe several recordings at once.
package stt

import (
	"context"
	"time"
)

// Segment is one contiguous, speaker-attributed span of transcribed speech.
type Segment struct {
	// Speaker is the numeric speaker slot (1..N). Slot 1 is the device owner.
	// Providers without diarization support report 0 for every segment.
	Speaker int

	// Start is the segment's start offset relative to the beginning of the
	// recording.
	Start time.Duration

	// End is the segment's end offset relative to the beginning of the
	// recording.
	End time.Duration

	// Text is the transcribed speech content of the segment.
	Text string
}

// Provider is the abstraction over any batch STT backend.
//
// Errors must be classified via the provider package (Transient/Permanent) so
// the pipeline can decide whether to retry: an unreadable or missing audio
// file is permanent, a network or rate-limit failure is transient.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Transcribe submits the audio file at path to the backend and returns
	// the transcribed segments ordered by Start offset. The slice is never
	// nil on success — a silent recording yields an empty slice.
	Transcribe(ctx context.Context, path string) ([]Segment, error)

	// ModelID returns the provider-specific model identifier used for
	// transcription (e.g., "whisper-1", "base.en"). Useful for logging.
	ModelID() string
}
