package tasker

import (
	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/pipeline"
	"github.com/viant/tasker/policy"
	"github.com/viant/tasker/service/dao"
	"github.com/viant/tasker/service/event"
	"github.com/viant/tasker/service/executor"
	"github.com/viant/tasker/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the service
type Option func(s *Service)

type pipelineRegistration struct {
	namespace string
	kind      string
	work      pipeline.Work
}

// WithMirror overrides the record mirror of one namespace
func WithMirror(namespace string, mirror dao.Service[string, task.Record]) Option {
	return func(s *Service) {
		s.overrides[namespace] = mirror
	}
}

// WithPipeline registers work as kind in namespace
func WithPipeline(namespace, kind string, work pipeline.Work) Option {
	return func(s *Service) {
		s.registrations = append(s.registrations, &pipelineRegistration{namespace: namespace, kind: kind, work: work})
	}
}

// WithEventHandler receives every task update; it replaces the logging handler
func WithEventHandler(handler func(*event.Event[task.Update])) Option {
	return func(s *Service) {
		s.eventHandler = handler
	}
}

// WithPolicy sets a runtime policy, for example one with an Ask callback;
// it takes precedence over the configured policy.
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithExecutorOptions passes additional options to executor.NewService
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(s *Service) {
		s.executorOptions = append(s.executorOptions, opts...)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter. The first successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		s.tracingErr = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
