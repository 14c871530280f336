package processor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/tasker/service/messaging"
)

// DefaultWorkerCount is the pool size used when none is configured.
const DefaultWorkerCount = 2

// Config represents worker pool configuration
type Config struct {
	// WorkerCount is the number of workers processing items
	WorkerCount int
}

// DefaultConfig returns the default pool configuration
func DefaultConfig() Config {
	return Config{WorkerCount: DefaultWorkerCount}
}

// Handler processes one item. Returned errors are logged and the message
// is nacked.
type Handler[T any] func(ctx context.Context, item *T) error

// Service runs a fixed number of workers over a queue
type Service[T any] struct {
	name    string
	config  Config
	queue   messaging.Queue[T]
	handler Handler[T]

	mu       sync.Mutex
	started  bool
	workers  []*worker[T]
	workerWg sync.WaitGroup
	active   atomic.Int32
}

type worker[T any] struct {
	id       int
	service  *Service[T]
	ctx      context.Context
	cancelFn context.CancelFunc
}

// New creates a new worker pool
func New[T any](options ...Option[T]) (*Service[T], error) {
	s := &Service[T]{
		name:   "processor",
		config: DefaultConfig(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if s.handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if s.config.WorkerCount <= 0 {
		s.config.WorkerCount = DefaultWorkerCount
	}
	return s, nil
}

// Workers returns the configured pool size
func (s *Service[T]) Workers() int {
	return s.config.WorkerCount
}

// Active returns the number of items currently being handled
func (s *Service[T]) Active() int {
	return int(s.active.Load())
}

// Start launches the worker goroutines; subsequent calls are no-ops.
func (s *Service[T]) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	for i := 0; i < s.config.WorkerCount; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker[T]{
			id:       i,
			service:  s,
			ctx:      workerCtx,
			cancelFn: cancel,
		}
		s.workers = append(s.workers, w)
		s.workerWg.Add(1)
		go w.run()
	}
	return nil
}

// run processes messages from the queue
func (w *worker[T]) run() {
	defer w.service.workerWg.Done()
	for w.ctx.Err() == nil {
		msg, err := w.service.queue.Consume(w.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, messaging.ErrClosed) {
				return
			}
			log.Printf("WORKER_CONSUME_FAILED | pool=%s worker=%d err=%v", w.service.name, w.id, err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if msg == nil {
			continue
		}
		if pErr := w.service.process(w.ctx, msg); pErr != nil {
			log.Printf("WORKER_FAILED | pool=%s worker=%d err=%v", w.service.name, w.id, pErr)
		}
	}
}

func (s *Service[T]) process(ctx context.Context, msg messaging.Message[T]) (err error) {
	s.active.Add(1)
	defer s.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			_ = msg.Nack(err)
		}
	}()
	if err = s.handler(ctx, msg.T()); err != nil {
		_ = msg.Nack(err)
		return err
	}
	return msg.Ack()
}

// Shutdown cancels worker contexts and waits for in-flight items to return.
func (s *Service[T]) Shutdown() {
	s.mu.Lock()
	workers := s.workers
	s.workers = nil
	s.mu.Unlock()
	for _, w := range workers {
		w.cancelFn()
	}
	s.workerWg.Wait()
}
