package processor

import "github.com/viant/tasker/service/messaging"

// Option customises the service
type Option[T any] func(*Service[T])

// WithMessageQueue sets the message queue implementation
func WithMessageQueue[T any](queue messaging.Queue[T]) Option[T] {
	return func(s *Service[T]) {
		s.queue = queue
	}
}

// WithHandler sets the function invoked for every consumed item
func WithHandler[T any](handler Handler[T]) Option[T] {
	return func(s *Service[T]) {
		s.handler = handler
	}
}

// WithWorkers sets the number of worker goroutines
func WithWorkers[T any](count int) Option[T] {
	return func(s *Service[T]) {
		s.config.WorkerCount = count
	}
}

// WithName sets the name used in log lines
func WithName[T any](name string) Option[T] {
	return func(s *Service[T]) {
		s.name = name
	}
}

// WithConfig sets the configuration for the service
func WithConfig[T any](config Config) Option[T] {
	return func(s *Service[T]) {
		s.config = config
	}
}
