// Package event publishes typed task events over in-memory queues and
// dispatches them to listeners.
package event

import (
	"context"
	"reflect"
	"sync"

	"github.com/viant/tasker/service/messaging/memory"
)

// Service owns one queue, publisher and optional listener per event type
type Service struct {
	typedPublishers   map[reflect.Type]any
	typedListener     map[reflect.Type]stopper
	queues            []closer
	mux               *sync.RWMutex
	memNewQueueConfig func(name string) memory.Config
}

type stopper interface{ Stop() }

type closer interface{ Close() }

// New creates an event service
func New(opts ...Option) *Service {
	ret := &Service{
		typedPublishers: make(map[reflect.Type]any),
		typedListener:   make(map[reflect.Type]stopper),
		mux:             &sync.RWMutex{},
		memNewQueueConfig: func(name string) memory.Config {
			return memory.Config{}
		},
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func keyOf[T any]() reflect.Type {
	var t T
	rType := reflect.TypeOf(t)
	if rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	return rType
}

// SetListenerOf replaces the listener for events of type T.
func SetListenerOf[T any](ctx context.Context, s *Service, handler func(*Event[T])) {
	key := keyOf[T]()
	s.mux.RLock()
	prev, ok := s.typedListener[key]
	s.mux.RUnlock()
	if ok {
		prev.Stop()
	}
	listener := NewListener[T](PublisherOf[T](s), handler)
	s.mux.Lock()
	s.typedListener[key] = listener
	s.mux.Unlock()
	listener.Start(ctx)
}

// PublisherOf returns a publisher for the provided type
func PublisherOf[T any](s *Service) *Publisher[T] {
	key := keyOf[T]()
	s.mux.RLock()
	ret, ok := s.typedPublishers[key]
	s.mux.RUnlock()
	if ok {
		return ret.(*Publisher[T])
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if ret, ok = s.typedPublishers[key]; ok {
		return ret.(*Publisher[T])
	}
	queue := memory.NewQueue[Event[T]](s.memNewQueueConfig(key.String()))
	s.queues = append(s.queues, queue)
	publisher := NewPublisher[T](queue)
	s.typedPublishers[key] = publisher
	return publisher
}

// Close stops all listeners and closes every queue.
func (s *Service) Close() {
	s.mux.Lock()
	listeners := s.typedListener
	queues := s.queues
	s.typedListener = make(map[reflect.Type]stopper)
	s.queues = nil
	s.mux.Unlock()
	for _, listener := range listeners {
		listener.Stop()
	}
	for _, queue := range queues {
		queue.Close()
	}
}
