package provider

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
		permanent bool
	}{
		{"transient wrap", Transient(errors.New("rate limited")), true, false},
		{"permanent wrap", Permanent(errors.New("missing api key")), false, true},
		{"transientf", Transientf("http %d", 503), true, false},
		{"permanentf", Permanentf("bad input %q", "x.wav"), false, true},
		{"unclassified defaults to transient", errors.New("boom"), true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.transient {
				t.Errorf("IsTransient = %v, want %v", got, tc.transient)
			}
			if got := IsPermanent(tc.err); got != tc.permanent {
				t.Errorf("IsPermanent = %v, want %v", got, tc.permanent)
			}
		})
	}
}

func TestNilPassthrough(t *testing.T) {
	if Transient(nil) != nil {
		t.Error("Transient(nil) should be nil")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestMessagePreservedVerbatim(t *testing.T) {
	raw := "deepgram: server returned HTTP 429"
	err := Transient(errors.New(raw))
	if err.Error() != raw {
		t.Errorf("Error() = %q, want raw message %q", err.Error(), raw)
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	inner := Permanent(errors.New("invalid credential"))
	outer := fmt.Errorf("transcribe stage: %w", inner)
	if !IsPermanent(outer) {
		t.Error("permanent class lost through fmt.Errorf wrapping")
	}
	if IsTransient(outer) {
		t.Error("wrapped permanent error reported transient")
	}
}
