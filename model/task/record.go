package task

import (
	"fmt"
	"time"
)

// Payload is an opaque request or result document.
type Payload map[string]interface{}

// ProgressEvent is a timestamped fraction/message pair reported by work.
type ProgressEvent struct {
	Progress  float64   `json:"progress"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Record represents a single submitted unit of work
type Record struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	Status         Status          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
	Request        Payload         `json:"request"`
	Result         Payload         `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	Logs           []string        `json:"logs"`
	ProgressEvents []ProgressEvent `json:"progress_events"`
}

// New creates a queued record; the request is deep-copied so that later
// caller mutations do not leak into the captured input.
func New(id, kind string, request Payload, now time.Time) *Record {
	return &Record{
		ID:             id,
		Kind:           kind,
		Status:         StatusQueued,
		CreatedAt:      now,
		Request:        request.Clone(),
		Logs:           []string{},
		ProgressEvents: []ProgressEvent{},
	}
}

// Start marks the record as running
func (r *Record) Start(now time.Time) error {
	if r.Status != StatusQueued {
		return r.transitionError(StatusRunning)
	}
	r.StartedAt = &now
	r.Status = StatusRunning
	return nil
}

// Succeed marks the record as succeeded with the supplied result
func (r *Record) Succeed(result Payload, now time.Time) error {
	if err := r.finish(StatusSucceeded, now); err != nil {
		return err
	}
	r.Result = result.Clone()
	return nil
}

// Cancel marks the record as canceled. A result returned by work after the
// cancellation request is kept.
func (r *Record) Cancel(result Payload, now time.Time) error {
	if err := r.finish(StatusCanceled, now); err != nil {
		return err
	}
	r.Result = result.Clone()
	return nil
}

// Fail marks the record as failed
func (r *Record) Fail(err error, now time.Time) error {
	if tErr := r.finish(StatusFailed, now); tErr != nil {
		return tErr
	}
	r.Error = "unknown error"
	if err != nil {
		r.Error = err.Error()
	}
	return nil
}

// Abandon fails a record that never reached a terminal state, regardless of
// whether it was queued or running. It is used when work can no longer run,
// e.g. after a restart or a shutdown. A queued record keeps a nil StartedAt.
func (r *Record) Abandon(reason string, now time.Time) error {
	if r.Status.IsTerminal() {
		return r.transitionError(StatusFailed)
	}
	r.FinishedAt = &now
	r.Status = StatusFailed
	r.Error = reason
	return nil
}

// AppendLog appends a free-text message
func (r *Record) AppendLog(message string) {
	r.Logs = append(r.Logs, message)
}

// AppendProgress appends a progress event; progress is clamped to [0,1].
func (r *Record) AppendProgress(progress float64, message string, now time.Time) ProgressEvent {
	switch {
	case progress < 0 || progress != progress:
		progress = 0
	case progress > 1:
		progress = 1
	}
	event := ProgressEvent{Progress: progress, Message: message, Timestamp: now}
	r.ProgressEvents = append(r.ProgressEvents, event)
	return event
}

func (r *Record) finish(status Status, now time.Time) error {
	if r.Status != StatusRunning {
		return r.transitionError(status)
	}
	r.FinishedAt = &now
	r.Status = status
	return nil
}

func (r *Record) transitionError(to Status) error {
	return fmt.Errorf("%w: %v -> %v (task %v)", ErrInvalidTransition, r.Status, to, r.ID)
}

// Clone creates a deep copy of the record so that the caller can read it
// while a worker keeps mutating the original.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Request = r.Request.Clone()
	clone.Result = r.Result.Clone()
	if r.StartedAt != nil {
		t := *r.StartedAt
		clone.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		clone.FinishedAt = &t
	}
	clone.Logs = append(make([]string, 0, len(r.Logs)), r.Logs...)
	clone.ProgressEvents = append(make([]ProgressEvent, 0, len(r.ProgressEvents)), r.ProgressEvents...)
	return &clone
}

// Clone deep-copies nested maps and slices; other values are shared.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	ret := make(Payload, len(p))
	for k, v := range p {
		ret[k] = cloneValue(v)
	}
	return ret
}

func cloneValue(value interface{}) interface{} {
	switch actual := value.(type) {
	case map[string]interface{}:
		return map[string]interface{}(Payload(actual).Clone())
	case Payload:
		return actual.Clone()
	case []interface{}:
		ret := make([]interface{}, len(actual))
		for i, item := range actual {
			ret[i] = cloneValue(item)
		}
		return ret
	case []string:
		return append([]string(nil), actual...)
	}
	return value
}
