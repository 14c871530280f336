package pipeline

import (
	"context"
	"fmt"

	"github.com/viant/structology/conv"
	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/service/cancel"
	"github.com/viant/tasker/service/executor"
)

// Reporter gives typed work access to progress, logs and its cancellation signal
type Reporter struct {
	onProgress executor.ProgressFunc
	onLog      executor.LogFunc
	signal     cancel.Signal
}

// NewReporter creates a reporter
func NewReporter(onProgress executor.ProgressFunc, onLog executor.LogFunc, signal cancel.Signal) *Reporter {
	return &Reporter{onProgress: onProgress, onLog: onLog, signal: signal}
}

// Progress reports a completion fraction
func (r *Reporter) Progress(value float64, message string) {
	if r.onProgress != nil {
		r.onProgress(value, message)
	}
}

// Log appends a log line
func (r *Reporter) Log(message string) {
	if r.onLog != nil {
		r.onLog(message)
	}
}

// Logf appends a formatted log line
func (r *Reporter) Logf(format string, args ...interface{}) {
	r.Log(fmt.Sprintf(format, args...))
}

// Canceled reports whether cancellation was requested
func (r *Reporter) Canceled() bool {
	return r.signal != nil && r.signal.Canceled()
}

// Signal returns the cancellation signal
func (r *Reporter) Signal() cancel.Signal {
	return r.signal
}

// TypedFunc is work operating on a typed request
type TypedFunc[T any] func(ctx context.Context, request *T, reporter *Reporter) (task.Payload, error)

// Bind converts the opaque request into *T before calling fn.
func Bind[T any](fn TypedFunc[T]) Work {
	options := conv.DefaultOptions()
	options.IgnoreUnmapped = true
	converter := conv.NewConverter(options)
	return func(ctx context.Context, request task.Payload, onProgress executor.ProgressFunc, onLog executor.LogFunc, signal cancel.Signal) (task.Payload, error) {
		typed := new(T)
		if len(request) > 0 {
			if err := converter.Convert(map[string]interface{}(request), typed); err != nil {
				return nil, fmt.Errorf("invalid request: %w", err)
			}
		}
		return fn(ctx, typed, NewReporter(onProgress, onLog, signal))
	}
}
