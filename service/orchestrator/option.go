package orchestrator

import (
	"github.com/viant/tasker/policy"
	"github.com/viant/tasker/progress"
	"github.com/viant/tasker/service/event"
	"github.com/viant/tasker/service/executor"
)

// Option customises the orchestrator
type Option func(*Service)

// WithWorkers sets the worker pool size
func WithWorkers(count int) Option {
	return func(s *Service) {
		s.workers = count
	}
}

// WithPolicy sets the submission policy
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithEvents publishes a task.Update event for every record change
func WithEvents(events *event.Service) Option {
	return func(s *Service) {
		s.events = events
	}
}

// WithTracker sets the per-status counter tracker
func WithTracker(tracker *progress.Progress) Option {
	return func(s *Service) {
		s.tracker = tracker
	}
}

// WithExecutor sets the executor invoking work
func WithExecutor(executor executor.Service) Option {
	return func(s *Service) {
		s.executor = executor
	}
}
