// Package provider defines the error taxonomy shared by all stage adapter
// implementations (speech-to-text, LLM, embeddings).
//
// Adapters wrap external AI services, and the processing pipeline needs to know
// whether a failure is worth retrying. Every error returned by an adapter is
// classified as either transient (network trouble, rate limits, a malformed but
// recoverable model response) or permanent (missing credential, corrupt input).
// The pipeline retries transient failures with backoff and fails the job
// immediately on permanent ones.
package provider

import (
	"errors"
	"fmt"
)

// Class describes whether an adapter failure is worth retrying.
type Class int

const (
	// ClassTransient marks failures that may succeed on a later attempt:
	// network errors, rate limits, provider-side 5xx, unparsable model output.
	ClassTransient Class = iota

	// ClassPermanent marks failures that will not succeed no matter how often
	// they are retried: missing API keys, invalid or corrupt input files.
	ClassPermanent
)

// String returns the human-readable name of the class.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// AdapterError wraps an underlying adapter failure with its retry class.
// It implements the error interface and supports errors.Is/As unwrapping.
type AdapterError struct {
	// Class is the retry classification.
	Class Class

	// Err is the underlying failure from the adapter or SDK.
	Err error
}

// Error implements the error interface. The raw underlying message is kept
// verbatim so the pipeline can persist it unchanged into errorMessage.
func (e *AdapterError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error for errors.Is/As chains.
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable adapter failure.
// Returns nil when err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &AdapterError{Class: ClassTransient, Err: err}
}

// Transientf is a convenience for Transient(fmt.Errorf(...)).
func Transientf(format string, args ...any) error {
	return &AdapterError{Class: ClassTransient, Err: fmt.Errorf(format, args...)}
}

// Permanent wraps err as a non-retryable adapter failure.
// Returns nil when err is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &AdapterError{Class: ClassPermanent, Err: err}
}

// Permanentf is a convenience for Permanent(fmt.Errorf(...)).
func Permanentf(format string, args ...any) error {
	return &AdapterError{Class: ClassPermanent, Err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err should be retried. Errors that carry no
// classification default to transient: an unknown failure from a remote
// service is more often a hiccup than a programming error, and the retry
// budget caps the damage when that guess is wrong.
func IsTransient(err error) bool {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Class == ClassTransient
	}
	return true
}

// IsPermanent reports whether err is classified as permanent.
func IsPermanent(err error) bool {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Class == ClassPermanent
	}
	return false
}
