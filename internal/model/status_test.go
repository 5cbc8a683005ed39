package model

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	all := []SubtaskStatus{StatusReady, StatusPending, StatusPause, StatusFail, StatusFinish}
	allowed := map[[2]SubtaskStatus]bool{
		{StatusReady, StatusPending}:  true,
		{StatusPending, StatusFinish}: true,
		{StatusPending, StatusPause}:  true,
		{StatusPending, StatusFail}:   true,
		{StatusPause, StatusReady}:    true,
		{StatusFail, StatusReady}:     true,
	}

	for _, from := range all {
		for _, to := range all {
			expected := allowed[[2]SubtaskStatus{from, to}]
			if result := CanTransition(from, to); result != expected {
				t.Errorf("CanTransition(%s, %s) = %v, expected %v", from, to, result, expected)
			}
		}
	}
}

func TestSubtaskStatus_IsResumable(t *testing.T) {
	tests := []struct {
		status   SubtaskStatus
		expected bool
	}{
		{StatusReady, false},
		{StatusPending, false},
		{StatusPause, true},
		{StatusFail, true},
		{StatusFinish, false},
	}

	for _, test := range tests {
		result := test.status.IsResumable()
		if result != test.expected {
			t.Errorf("SubtaskStatus(%s).IsResumable() = %v, expected %v", test.status, result, test.expected)
		}
	}
}

func TestSubtask_SetStatus(t *testing.T) {
	s := &Subtask{Status: StatusReady}

	if err := s.SetStatus(StatusFinish); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}
	if s.Status != StatusReady {
		t.Errorf("Rejected transition must not change status, got %s", s.Status)
	}

	for _, next := range []SubtaskStatus{StatusPending, StatusFail, StatusReady, StatusPending, StatusFinish} {
		if err := s.SetStatus(next); err != nil {
			t.Fatalf("SetStatus(%s) failed: %v", next, err)
		}
	}
	if err := s.SetStatus(StatusReady); err == nil {
		t.Error("finish must be terminal")
	}
}

func TestParseURLType(t *testing.T) {
	if v, err := ParseURLType("folder"); err != nil || v != URLTypeFolder {
		t.Errorf("ParseURLType(folder) = %q, %v", v, err)
	}
	if _, err := ParseURLType("album"); err == nil {
		t.Error("Expected error for unknown url type")
	}
}
