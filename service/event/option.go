package event

import "github.com/viant/tasker/service/messaging/memory"

// Option customises the event service
type Option func(s *Service)

// WithNewMemoryQueueConfig sets the per event type memory queue configuration
func WithNewMemoryQueueConfig(newConfig func(name string) memory.Config) Option {
	return func(s *Service) {
		s.memNewQueueConfig = newConfig
	}
}
