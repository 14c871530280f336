// Package cancel provides advisory, cooperative cancellation signals.
//
// Setting a signal never interrupts running work: work must poll Canceled or
// select on Done and decide how to stop. There is no forced termination.
package cancel

import (
	"context"
	"sync"
)

// Signal is the read-only view handed to work.
type Signal interface {
	// Canceled reports whether cancellation was requested.
	Canceled() bool
	// Done is closed once cancellation is requested.
	Done() <-chan struct{}
}

// Token is a one-way cancellation flag.
type Token struct {
	once sync.Once
	done chan struct{}
}

// NewToken creates an unset token
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel sets the flag; repeated calls are no-ops.
func (t *Token) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Canceled reports whether the flag is set.
func (t *Token) Canceled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the flag is set.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Context derives a context that is canceled when parent is done or signal
// is set. The returned CancelFunc releases the watcher goroutine.
func Context(parent context.Context, signal Signal) (context.Context, context.CancelFunc) {
	ctx, cancelFn := context.WithCancel(parent)
	go func() {
		select {
		case <-signal.Done():
			cancelFn()
		case <-ctx.Done():
		}
	}()
	return ctx, cancelFn
}

// Registry holds one token per task id for the life of the process. It is
// not safe for concurrent use on its own; the orchestrator guards it.
type Registry struct {
	tokens map[string]*Token
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tokens: map[string]*Token{}}
}

// Register creates (or returns the existing) token for id.
func (r *Registry) Register(id string) *Token {
	if token, ok := r.tokens[id]; ok {
		return token
	}
	token := NewToken()
	r.tokens[id] = token
	return token
}

// Lookup returns the token registered for id.
func (r *Registry) Lookup(id string) (*Token, bool) {
	token, ok := r.tokens[id]
	return token, ok
}

// Cancel sets the token for id and reports whether id was known.
func (r *Registry) Cancel(id string) bool {
	token, ok := r.tokens[id]
	if !ok {
		return false
	}
	token.Cancel()
	return true
}
