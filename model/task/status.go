package task

import (
	"errors"
	"fmt"
)

// Status represents the lifecycle state of a task
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

var (
	// ErrInvalidStatus is returned when parsing an unknown status value.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidTransition is returned when a transition does not follow
	// queued -> running -> terminal.
	ErrInvalidTransition = errors.New("invalid status transition")
)

var statuses = []Status{StatusQueued, StatusRunning, StatusSucceeded, StatusFailed, StatusCanceled}

// Statuses returns all statuses in lifecycle order.
func Statuses() []Status {
	return append([]Status(nil), statuses...)
}

// IsTerminal returns true for succeeded, failed and canceled.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// IsValid returns true when s is one of the known statuses.
func (s Status) IsValid() bool {
	for _, candidate := range statuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// ParseStatus converts text into a Status.
func ParseStatus(text string) (Status, error) {
	status := Status(text)
	if !status.IsValid() {
		return "", fmt.Errorf("%w %v", ErrInvalidStatus, text)
	}
	return status, nil
}
