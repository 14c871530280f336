// Package memory implements an unbounded in-process FIFO queue.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/tasker/service/messaging"
)

// Config for memory queue implementation
type Config struct {
	// DeadLetter keeps nacked messages for inspection.
	DeadLetter bool
}

// DefaultConfig returns a standard configuration for memory queue
func DefaultConfig() Config {
	return Config{DeadLetter: true}
}

// Message implements messaging.Message for the in-memory queue
type Message[T any] struct {
	id        string
	payload   T
	queue     *Queue[T]
	mu        sync.Mutex
	processed bool
	err       error
	createdAt time.Time
}

// ID returns the message id
func (m *Message[T]) ID() string {
	return m.id
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.payload
}

// Err returns the error passed to Nack, if any.
func (m *Message[T]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Ack acknowledges the message as processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %v already processed", m.id)
	}
	m.processed = true
	return nil
}

// Nack marks the message as failed. Messages are never redelivered; with
// DeadLetter enabled they are kept in the dead letter list.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	if m.processed {
		m.mu.Unlock()
		return fmt.Errorf("message %v already processed", m.id)
	}
	m.processed = true
	m.err = err
	m.mu.Unlock()

	if m.queue.config.DeadLetter {
		m.queue.dlqMu.Lock()
		m.queue.dlq = append(m.queue.dlq, m)
		m.queue.dlqMu.Unlock()
	}
	return nil
}

// Queue implements an unbounded messaging.Queue: Publish never blocks on
// consumers.
type Queue[T any] struct {
	config   Config
	mu       sync.Mutex
	messages []*Message[T]
	notify   chan struct{}
	closed   bool
	dlq      []*Message[T]
	dlqMu    sync.Mutex
}

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config) *Queue[T] {
	return &Queue[T]{
		config: config,
		notify: make(chan struct{}, 1),
	}
}

// Publish appends an item to the queue
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &Message[T]{
		id:        uuid.New().String(),
		payload:   *t,
		queue:     q,
		createdAt: time.Now(),
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return messaging.ErrClosed
	}
	q.messages = append(q.messages, msg)
	q.signal()
	return nil
}

// Consume retrieves the oldest item, blocking until one is available, ctx
// is done or the queue is closed.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	for {
		q.mu.Lock()
		if len(q.messages) > 0 {
			msg := q.messages[0]
			q.messages[0] = nil
			q.messages = q.messages[1:]
			if len(q.messages) > 0 {
				// wake the next waiting consumer
				q.signal()
			}
			q.mu.Unlock()
			return msg, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, messaging.ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops accepting messages; consumers drain what is left and then
// receive messaging.ErrClosed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

// signal must be called with q.mu held.
func (q *Queue[T]) signal() {
	if q.closed {
		return
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Size returns the current number of messages in the queue
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// DLQSize returns the number of messages in the dead letter queue
func (q *Queue[T]) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
