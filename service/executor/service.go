package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/tracing"
)

// Listener is invoked once work returns, whether it failed or not.
type Listener func(invocation *Invocation, result task.Payload, err error, elapsed time.Duration)

// LogListener logs one line per completed run.
func LogListener(invocation *Invocation, result task.Payload, err error, elapsed time.Duration) {
	if invocation == nil {
		return
	}
	if err != nil {
		log.Printf("TASK_RUN | id=%s kind=%s elapsed=%s err=%v", invocation.ID, invocation.Kind, elapsed, err)
		return
	}
	log.Printf("TASK_RUN | id=%s kind=%s elapsed=%s result_keys=%d", invocation.ID, invocation.Kind, elapsed, len(result))
}

// Option is used to customise the executor instance.
type Option func(*service)

// WithListener overrides the listener invoked after every run. Passing nil
// disables the callback.
func WithListener(l Listener) Option {
	return func(s *service) {
		s.listener = l
	}
}

// Service represents a work executor.
type Service interface {
	Execute(ctx context.Context, invocation *Invocation) (task.Payload, error)
}

type service struct {
	listener Listener
}

// Execute runs the invocation's work inside a tracing span.
func (s *service) Execute(ctx context.Context, invocation *Invocation) (result task.Payload, err error) {
	ctx, span := tracing.StartSpan(ctx, "task.run "+invocation.Kind, tracing.KindConsumer)
	span.WithAttributes(map[string]string{"task.id": invocation.ID, "task.kind": invocation.Kind})
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		tracing.EndSpan(span, err)
		if s.listener != nil {
			s.listener(invocation, result, err, time.Since(started))
		}
	}()
	return invocation.Work(ctx, invocation.Request.Clone(), s.onProgress(invocation), s.onLog(invocation), invocation.Signal)
}

func (s *service) onProgress(invocation *Invocation) ProgressFunc {
	if invocation.OnProgress != nil {
		return invocation.OnProgress
	}
	return func(float64, string) {}
}

func (s *service) onLog(invocation *Invocation) LogFunc {
	if invocation.OnLog != nil {
		return invocation.OnLog
	}
	return func(string) {}
}

// NewService creates a new executor service instance.
func NewService(opts ...Option) Service {
	s := &service{listener: LogListener}
	for _, o := range opts {
		o(s)
	}
	return s
}
