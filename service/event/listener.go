package event

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/viant/tasker/service/messaging"
)

// Listener consumes events in a goroutine until stopped
type Listener[T any] struct {
	publisher *Publisher[T]
	handler   func(*Event[T])
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewListener creates a listener
func NewListener[T any](publisher *Publisher[T], handler func(*Event[T])) *Listener[T] {
	return &Listener[T]{
		publisher: publisher,
		handler:   handler,
	}
}

// Start launches the consuming goroutine; it runs until ctx is done or Stop is called.
func (l *Listener[T]) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

func (l *Listener[T]) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		event, err := l.publisher.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, messaging.ErrClosed) {
				return
			}
			log.Printf("EVENT_CONSUME_FAILED | err=%v", err)
			continue
		}
		if event == nil {
			continue
		}
		l.handle(event)
	}
}

func (l *Listener[T]) handle(event *Event[T]) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("EVENT_HANDLER_PANIC | type=%v err=%v", event.Context.EventType, r)
		}
	}()
	l.handler(event)
}

// Stop cancels the listener and waits for the goroutine to exit.
func (l *Listener[T]) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
