package model

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a subtask status change does not
// follow one of the allowed edges.
var ErrInvalidTransition = errors.New("invalid status transition")

// SubtaskStatus represents the status of a single transfer unit
type SubtaskStatus string

const (
	// StatusReady means the subtask can be picked by the scheduler
	StatusReady SubtaskStatus = "ready"

	// StatusPending means the subtask is resolving or transferring
	StatusPending SubtaskStatus = "pending"

	// StatusPause means the transfer was cancelled by the user
	StatusPause SubtaskStatus = "pause"

	// StatusFail means the transfer failed with an error
	StatusFail SubtaskStatus = "fail"

	// StatusFinish means the file was fully written
	StatusFinish SubtaskStatus = "finish"
)

var transitions = map[SubtaskStatus][]SubtaskStatus{
	StatusReady:   {StatusPending},
	StatusPending: {StatusFinish, StatusPause, StatusFail},
	StatusPause:   {StatusReady},
	StatusFail:    {StatusReady},
}

// String returns the string representation of SubtaskStatus
func (s SubtaskStatus) String() string {
	return string(s)
}

// IsResumable returns true if an explicit resume may move the subtask back to ready
func (s SubtaskStatus) IsResumable() bool {
	return s == StatusPause || s == StatusFail
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to SubtaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TaskStatus is the aggregate status of a task derived from its subtasks
type TaskStatus string

const (
	TaskStatusReady   TaskStatus = "ready"
	TaskStatusPending TaskStatus = "pending"
)

// URLType tells whether a share reference points at a single file or a folder
type URLType string

const (
	URLTypeFile   URLType = "file"
	URLTypeFolder URLType = "folder"
)

// ParseURLType converts the value reported by the address service.
func ParseURLType(v string) (URLType, error) {
	switch URLType(v) {
	case URLTypeFile, URLTypeFolder:
		return URLType(v), nil
	default:
		return "", fmt.Errorf("unknown url type %q", v)
	}
}
