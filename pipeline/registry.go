package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/service/cancel"
	"github.com/viant/tasker/service/executor"
)

var (
	// ErrInvalidKind is returned when registering an empty kind.
	ErrInvalidKind = errors.New("pipeline: kind must not be empty")

	// ErrDuplicate is returned when a kind is registered twice.
	ErrDuplicate = errors.New("pipeline: kind already registered")

	// ErrNilWork is returned when registering nil work.
	ErrNilWork = errors.New("pipeline: work must not be nil")
)

// Work is the unit of work a pipeline provides.
type Work = executor.Work

// Registry maps kinds to work
type Registry struct {
	mux   sync.RWMutex
	items map[string]Work
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{items: map[string]Work{}}
}

// Register adds work under kind. The registered work first logs "Running <kind>".
func (r *Registry) Register(kind string, work Work) error {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return ErrInvalidKind
	}
	if work == nil {
		return ErrNilWork
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	if _, ok := r.items[kind]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicate, kind)
	}
	r.items[kind] = Announce(kind, work)
	return nil
}

// Lookup returns work registered for kind
func (r *Registry) Lookup(kind string) (Work, bool) {
	if r == nil {
		return nil, false
	}
	r.mux.RLock()
	defer r.mux.RUnlock()
	work, ok := r.items[kind]
	return work, ok
}

// Kinds returns the registered kinds sorted by name
func (r *Registry) Kinds() []string {
	if r == nil {
		return nil
	}
	r.mux.RLock()
	defer r.mux.RUnlock()
	ret := make([]string, 0, len(r.items))
	for kind := range r.items {
		ret = append(ret, kind)
	}
	sort.Strings(ret)
	return ret
}

// Announce wraps work so that it logs "Running <kind>" before starting.
func Announce(kind string, work Work) Work {
	return func(ctx context.Context, request task.Payload, onProgress executor.ProgressFunc, onLog executor.LogFunc, signal cancel.Signal) (task.Payload, error) {
		onLog("Running " + kind)
		return work(ctx, request, onProgress, onLog, signal)
	}
}
