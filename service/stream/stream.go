// Package stream turns a task's appended progress events into a sequence of
// frames suitable for server-sent events.
package stream

import (
	"context"
	"time"

	"github.com/viant/tasker/model/task"
)

// DefaultInterval is the poll period between record reads.
const DefaultInterval = 200 * time.Millisecond

// NotFoundMessage is the terminal error reported for unknown ids.
const NotFoundMessage = "task not found"

// Source returns record snapshots by id.
type Source interface {
	Get(id string) (*task.Record, bool)
}

// Frame is one streamed message. The zero Frame marshals to {}.
type Frame struct {
	Progress *float64    `json:"progress,omitempty"`
	Message  *string     `json:"message,omitempty"`
	Done     bool        `json:"done,omitempty"`
	Status   task.Status `json:"status,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// ProgressFrame creates a frame for a progress event
func ProgressFrame(e task.ProgressEvent) Frame {
	value, message := e.Progress, e.Message
	return Frame{Progress: &value, Message: &message}
}

// Option customises the streamer
type Option func(*Streamer)

// WithInterval sets the poll period
func WithInterval(interval time.Duration) Option {
	return func(s *Streamer) {
		if interval > 0 {
			s.Interval = interval
		}
	}
}

// WithNotFoundMessage sets the terminal error reported for unknown ids
func WithNotFoundMessage(message string) Option {
	return func(s *Streamer) {
		s.NotFound = message
	}
}

// Streamer polls a Source for new progress events
type Streamer struct {
	Source   Source
	Interval time.Duration
	NotFound string
}

// New creates a streamer
func New(source Source, options ...Option) *Streamer {
	ret := &Streamer{Source: source, Interval: DefaultInterval, NotFound: NotFoundMessage}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Stream emits every progress event appended to the task, then one terminal
// frame once the task finishes. Unknown ids get an empty frame followed by a
// failed terminal frame. It returns early with emit's error or ctx's error.
func (s *Streamer) Stream(ctx context.Context, id string, emit func(Frame) error) error {
	record, ok := s.Source.Get(id)
	if !ok {
		if err := emit(Frame{}); err != nil {
			return err
		}
		return emit(Frame{Done: true, Status: task.StatusFailed, Error: s.NotFound})
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seen := 0
	for {
		for ; seen < len(record.ProgressEvents); seen++ {
			if err := emit(ProgressFrame(record.ProgressEvents[seen])); err != nil {
				return err
			}
		}
		if record.Status.IsTerminal() {
			return emit(Frame{Done: true, Status: record.Status, Error: record.Error})
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if record, ok = s.Source.Get(id); !ok {
			return emit(Frame{Done: true, Status: task.StatusFailed, Error: s.NotFound})
		}
	}
}
