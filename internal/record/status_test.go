package record

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusProcessing, StatusTranscribing, true},
		{StatusTranscribing, StatusSummarizing, true},
		{StatusSummarizing, StatusComplete, true},
		{StatusProcessing, StatusFailed, true},
		{StatusTranscribing, StatusFailed, true},
		{StatusSummarizing, StatusFailed, true},
		{StatusFailed, StatusProcessing, true},

		// No skipping stages.
		{StatusProcessing, StatusSummarizing, false},
		{StatusProcessing, StatusComplete, false},
		{StatusTranscribing, StatusComplete, false},
		// Terminal state stays terminal.
		{StatusComplete, StatusFailed, false},
		{StatusComplete, StatusProcessing, false},
		// Failed recovers only via manual retry to processing.
		{StatusFailed, StatusTranscribing, false},
		{StatusFailed, StatusComplete, false},
		// No self-loops.
		{StatusProcessing, StatusProcessing, false},
		{StatusFailed, StatusFailed, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusProcessing, StatusTranscribing, StatusSummarizing, StatusFailed} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
	if !StatusComplete.Terminal() {
		t.Error("complete.Terminal() = false, want true")
	}
}

func TestStatusIsValid(t *testing.T) {
	for _, s := range []Status{StatusProcessing, StatusTranscribing, StatusSummarizing, StatusComplete, StatusFailed} {
		if !s.IsValid() {
			t.Errorf("%s.IsValid() = false, want true", s)
		}
	}
	if Status("queued").IsValid() {
		t.Error(`Status("queued").IsValid() = true, want false`)
	}
}
