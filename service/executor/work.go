package executor

import (
	"context"

	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/service/cancel"
)

// ProgressFunc reports a completion fraction in [0,1] with a message.
type ProgressFunc func(progress float64, message string)

// LogFunc appends a free-text log line.
type LogFunc func(message string)

// Work is an opaque unit of work. It should check signal at reasonable
// intervals and return an error on failure. ctx is also canceled once
// signal is set.
type Work func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error)

// Invocation carries everything needed for one run of Work.
type Invocation struct {
	ID         string
	Kind       string
	Request    task.Payload
	Work       Work
	OnProgress ProgressFunc
	OnLog      LogFunc
	Signal     cancel.Signal
}
