package orchestrator

import "errors"

var (
	// ErrInvalidKind is returned when submitting with an empty kind.
	ErrInvalidKind = errors.New("orchestrator: kind must not be empty")

	// ErrNilWork is returned when submitting without work.
	ErrNilWork = errors.New("orchestrator: work must not be nil")

	// ErrNotFound is returned by Wait for an unknown task id.
	ErrNotFound = errors.New("orchestrator: task not found")

	// ErrShutdown is recorded on tasks still queued when the orchestrator stops.
	ErrShutdown = errors.New("orchestrator: shut down before the task started")
)
