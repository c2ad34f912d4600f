package scheduling

import (
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses {
		got, err := ParseStatus(string(s))
		if err != nil || got != s {
			t.Errorf("ParseStatus(%q) = %q, %v", s, got, err)
		}
	}
	for _, bad := range []string{"", "done", "Waiting", "in_progress"} {
		if _, err := ParseStatus(bad); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("ParseStatus(%q): expected ErrInvalidStatus, got %v", bad, err)
		}
	}
}

func TestStatus_Predicates(t *testing.T) {
	tests := []struct {
		s        Status
		terminal bool
		inQueue  bool
	}{
		{StatusWaiting, false, true},
		{StatusInProgress, false, true},
		{StatusCompleted, true, false},
		{StatusCancelled, true, false},
	}
	for _, tt := range tests {
		if tt.s.IsTerminal() != tt.terminal || tt.s.InQueue() != tt.inQueue {
			t.Errorf("%s: terminal=%v inQueue=%v", tt.s, tt.s.IsTerminal(), tt.s.InQueue())
		}
	}
}

func TestCheckTransition(t *testing.T) {
	for _, from := range []Status{StatusWaiting, StatusInProgress} {
		for _, to := range Statuses {
			if err := CheckTransition(from, to); err != nil {
				t.Errorf("%s -> %s should be allowed: %v", from, to, err)
			}
		}
	}
	for _, to := range Statuses {
		if err := CheckTransition(StatusCompleted, to); !errors.Is(err, ErrAlreadyCompleted) {
			t.Errorf("completed -> %s: expected ErrAlreadyCompleted, got %v", to, err)
		}
		if err := CheckTransition(StatusCancelled, to); !errors.Is(err, ErrAlreadyCancelled) {
			t.Errorf("cancelled -> %s: expected ErrAlreadyCancelled, got %v", to, err)
		}
	}
	if err := CheckTransition(StatusWaiting, "bogus"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}
