package tasker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/tasker/policy"
	"github.com/viant/tasker/service/meta"
	"github.com/viant/tasker/service/processor"
	"github.com/viant/tasker/service/stream"
)

// Storage backends.
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DefaultPipelineNamespace hosts pipelines that do not name a namespace.
const DefaultPipelineNamespace = "jobs"

// Config is a serialisable representation of the service configuration. It
// can be populated from YAML, TOML or JSON; omitted fields keep the values
// from DefaultConfig.
type Config struct {
	Storage    StorageConfig      `json:"storage" yaml:"storage" toml:"storage"`
	Processor  ProcessorConfig    `json:"processor" yaml:"processor" toml:"processor"`
	Server     ServerConfig       `json:"server" yaml:"server" toml:"server"`
	Tracing    TracingConfig      `json:"tracing" yaml:"tracing" toml:"tracing"`
	Events     EventsConfig       `json:"events" yaml:"events" toml:"events"`
	Policy     *policy.Config     `json:"policy,omitempty" yaml:"policy,omitempty" toml:"policy,omitempty"`
	Namespaces []*NamespaceConfig `json:"namespaces" yaml:"namespaces" toml:"namespaces"`
	Pipelines  []*PipelineConfig  `json:"pipelines,omitempty" yaml:"pipelines,omitempty" toml:"pipelines,omitempty"`
}

// StorageConfig selects where task records are mirrored
type StorageConfig struct {
	Backend   string `json:"backend" yaml:"backend" toml:"backend"`
	URL       string `json:"url" yaml:"url" toml:"url"`
	Reconcile bool   `json:"reconcile" yaml:"reconcile" toml:"reconcile"`
}

// ProcessorConfig sizes the worker pools
type ProcessorConfig struct {
	WorkerCount int `json:"workers" yaml:"workers" toml:"workers"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr             string  `json:"addr" yaml:"addr" toml:"addr"`
	RateLimit        float64 `json:"rateLimit" yaml:"rateLimit" toml:"rateLimit"`
	Burst            int     `json:"burst" yaml:"burst" toml:"burst"`
	StreamIntervalMs int     `json:"streamIntervalMs" yaml:"streamIntervalMs" toml:"streamIntervalMs"`
}

// StreamInterval returns the SSE poll period
func (c *ServerConfig) StreamInterval() time.Duration {
	return time.Duration(c.StreamIntervalMs) * time.Millisecond
}

// TracingConfig enables OpenTelemetry spans written by the stdout exporter
type TracingConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Service string `json:"service" yaml:"service" toml:"service"`
	Output  string `json:"output,omitempty" yaml:"output,omitempty" toml:"output"`
}

// EventsConfig controls the task event listener
type EventsConfig struct {
	Log bool `json:"log" yaml:"log" toml:"log"`
}

// NamespaceConfig defines one orchestrator and its route prefix
type NamespaceConfig struct {
	Prefix      string `json:"prefix" yaml:"prefix" toml:"prefix"`
	Noun        string `json:"noun" yaml:"noun" toml:"noun"`
	WorkerCount int    `json:"workers,omitempty" yaml:"workers,omitempty" toml:"workers"`
}

// PipelineConfig registers an external command as a submittable kind
type PipelineConfig struct {
	Kind      string            `json:"kind" yaml:"kind" toml:"kind"`
	Namespace string            `json:"namespace,omitempty" yaml:"namespace,omitempty" toml:"namespace"`
	Command   string            `json:"command" yaml:"command" toml:"command"`
	Directory string            `json:"directory,omitempty" yaml:"directory,omitempty" toml:"directory"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env"`
	TimeoutMs int               `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty" toml:"timeoutMs"`
}

// DefaultConfig returns a Config populated with package defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:   BackendFS,
			URL:       ".tasker",
			Reconcile: true,
		},
		Processor: ProcessorConfig{WorkerCount: processor.DefaultWorkerCount},
		Server: ServerConfig{
			Addr:             "127.0.0.1:8787",
			RateLimit:        20,
			Burst:            40,
			StreamIntervalMs: int(stream.DefaultInterval / time.Millisecond),
		},
		Tracing: TracingConfig{Service: "tasker"},
		Events:  EventsConfig{Log: true},
		Namespaces: []*NamespaceConfig{
			{Prefix: "tasks", Noun: "task"},
			{Prefix: "jobs", Noun: "job"},
		},
	}
}

// Namespace returns the namespace with prefix
func (c *Config) Namespace(prefix string) *NamespaceConfig {
	for _, ns := range c.Namespaces {
		if ns != nil && ns.Prefix == prefix {
			return ns
		}
	}
	return nil
}

// Init fills derived defaults
func (c *Config) Init() {
	for _, ns := range c.Namespaces {
		if ns == nil {
			continue
		}
		ns.Prefix = strings.Trim(ns.Prefix, "/")
		if ns.Noun == "" {
			ns.Noun = strings.TrimSuffix(ns.Prefix, "s")
		}
	}
	defaultNamespace := DefaultPipelineNamespace
	if c.Namespace(defaultNamespace) == nil && len(c.Namespaces) > 0 && c.Namespaces[0] != nil {
		defaultNamespace = c.Namespaces[0].Prefix
	}
	for _, p := range c.Pipelines {
		if p != nil && p.Namespace == "" {
			p.Namespace = defaultNamespace
		}
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	switch c.Storage.Backend {
	case BackendFS, BackendSQLite:
		if c.Storage.URL == "" {
			errs = append(errs, fmt.Errorf("storage.url is required for %v backend", c.Storage.Backend))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be one of fs, sqlite, memory: %q", c.Storage.Backend))
	}
	if c.Processor.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("processor.workers must be > 0"))
	}
	if c.Server.StreamIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("server.streamIntervalMs must be >= 0"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rateLimit must be >= 0"))
	}
	if len(c.Namespaces) == 0 {
		errs = append(errs, fmt.Errorf("at least one namespace is required"))
	}
	prefixes := map[string]bool{}
	for i, ns := range c.Namespaces {
		switch {
		case ns == nil || ns.Prefix == "":
			errs = append(errs, fmt.Errorf("namespaces[%d].prefix is required", i))
		case prefixes[ns.Prefix]:
			errs = append(errs, fmt.Errorf("duplicate namespace prefix: %v", ns.Prefix))
		case ns.Prefix == "health":
			errs = append(errs, fmt.Errorf("namespace prefix %q is reserved", ns.Prefix))
		case ns.WorkerCount < 0:
			errs = append(errs, fmt.Errorf("namespaces[%d].workers must be >= 0", i))
		}
		if ns != nil {
			prefixes[ns.Prefix] = true
		}
	}
	kinds := map[string]bool{}
	for i, p := range c.Pipelines {
		if p == nil || p.Kind == "" || p.Command == "" {
			errs = append(errs, fmt.Errorf("pipelines[%d]: kind and command are required", i))
			continue
		}
		key := p.Namespace + "/" + p.Kind
		if kinds[key] {
			errs = append(errs, fmt.Errorf("duplicate pipeline %v in namespace %v", p.Kind, p.Namespace))
		}
		kinds[key] = true
		if !prefixes[p.Namespace] {
			errs = append(errs, fmt.Errorf("pipelines[%d]: unknown namespace %q", i, p.Namespace))
		}
	}
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadConfig reads the config document at URL on top of DefaultConfig.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	ret := DefaultConfig()
	if err := meta.New(afs.New(), "").Load(ctx, URL, ret); err != nil {
		return nil, err
	}
	ret.Init()
	if err := ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %v: %w", URL, err)
	}
	return ret, nil
}
