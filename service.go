package tasker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/pipeline"
	"github.com/viant/tasker/policy"
	"github.com/viant/tasker/server"
	"github.com/viant/tasker/service/dao"
	fsrecord "github.com/viant/tasker/service/dao/record/fs"
	memrecord "github.com/viant/tasker/service/dao/record/memory"
	sqliterecord "github.com/viant/tasker/service/dao/record/sqlite"
	"github.com/viant/tasker/service/event"
	"github.com/viant/tasker/service/executor"
	"github.com/viant/tasker/service/orchestrator"
	"github.com/viant/tasker/service/store"
	"github.com/viant/tasker/tracing"
)

// ErrUnknownNamespace is returned for a namespace that is not configured.
var ErrUnknownNamespace = errors.New("tasker: unknown namespace")

// ErrUnknownPipeline is returned when submitting an unregistered kind.
var ErrUnknownPipeline = errors.New("tasker: unknown pipeline")

var tableReplacer = strings.NewReplacer("-", "_", ".", "_", "/", "_")

// Service wires orchestrators, pipelines, events and the HTTP server
type Service struct {
	config          *Config
	policy          *policy.Policy
	overrides       map[string]dao.Service[string, task.Record]
	mirrors         map[string]dao.Service[string, task.Record]
	registrations   []*pipelineRegistration
	eventHandler    func(*event.Event[task.Update])
	executorOptions []executor.Option
	tracingErr      error

	events        *event.Service
	db            *sql.DB
	orchestrators map[string]*orchestrator.Service
	pipelines     map[string]*pipeline.Registry
	server        *server.Server

	mu      sync.Mutex
	started bool
}

// New builds the service described by config
func New(ctx context.Context, config *Config, options ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	config.Init()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		config:        config,
		overrides:     map[string]dao.Service[string, task.Record]{},
		mirrors:       map[string]dao.Service[string, task.Record]{},
		orchestrators: map[string]*orchestrator.Service{},
		pipelines:     map[string]*pipeline.Registry{},
	}
	for _, opt := range options {
		opt(s)
	}
	if s.tracingErr != nil {
		return nil, fmt.Errorf("failed to initialise tracing: %w", s.tracingErr)
	}
	if config.Tracing.Enabled {
		if err := tracing.Init(config.Tracing.Service, server.Version, config.Tracing.Output); err != nil {
			return nil, fmt.Errorf("failed to initialise tracing: %w", err)
		}
	}
	if s.policy == nil {
		s.policy = policy.FromConfig(config.Policy)
	}
	if s.eventHandler == nil && config.Events.Log {
		s.eventHandler = LogEventHandler
	}
	if s.eventHandler != nil {
		s.events = event.New()
	}
	if err := s.init(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *Service) init(ctx context.Context) error {
	exec := executor.NewService(s.executorOptions...)
	for _, ns := range s.config.Namespaces {
		mirror, err := s.mirror(ctx, ns.Prefix)
		if err != nil {
			return err
		}
		s.mirrors[ns.Prefix] = mirror
		workers := ns.WorkerCount
		if workers == 0 {
			workers = s.config.Processor.WorkerCount
		}
		options := []orchestrator.Option{
			orchestrator.WithWorkers(workers),
			orchestrator.WithPolicy(s.policy),
			orchestrator.WithExecutor(exec),
		}
		if s.events != nil {
			options = append(options, orchestrator.WithEvents(s.events))
		}
		srv, err := orchestrator.New(ns.Prefix, store.New(mirror), options...)
		if err != nil {
			return fmt.Errorf("failed to create %v orchestrator: %w", ns.Prefix, err)
		}
		s.orchestrators[ns.Prefix] = srv
		s.pipelines[ns.Prefix] = pipeline.NewRegistry()
	}
	for _, p := range s.config.Pipelines {
		command := &pipeline.Command{
			Line:      p.Command,
			Directory: p.Directory,
			Env:       p.Env,
			Timeout:   time.Duration(p.TimeoutMs) * time.Millisecond,
		}
		if err := s.RegisterPipeline(p.Namespace, p.Kind, command.Work()); err != nil {
			return err
		}
	}
	for _, r := range s.registrations {
		if err := s.RegisterPipeline(r.namespace, r.kind, r.work); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) mirror(ctx context.Context, namespace string) (dao.Service[string, task.Record], error) {
	if mirror, ok := s.overrides[namespace]; ok {
		return mirror, nil
	}
	storage := s.config.Storage
	switch storage.Backend {
	case BackendMemory:
		return memrecord.New(), nil
	case BackendSQLite:
		if s.db == nil {
			location, err := sqliteLocation(ctx, storage.URL)
			if err != nil {
				return nil, err
			}
			if s.db, err = sqliterecord.Open(location); err != nil {
				return nil, err
			}
		}
		return sqliterecord.New(ctx, s.db, tableReplacer.Replace(namespace))
	default:
		return fsrecord.New(url.Join(url.Normalize(storage.URL, file.Scheme), namespace))
	}
}

// sqliteLocation returns the database file for URL, creating its directory.
// URLs without a .db/.sqlite extension are treated as directories.
func sqliteLocation(ctx context.Context, URL string) (string, error) {
	location := url.Path(url.Normalize(URL, file.Scheme))
	dir := path.Dir(location)
	switch strings.ToLower(path.Ext(location)) {
	case ".db", ".sqlite", ".sqlite3":
	default:
		dir = location
		location = path.Join(location, "tasker.db")
	}
	fs := afs.New()
	dirURL := url.Normalize(dir, file.Scheme)
	if ok, _ := fs.Exists(ctx, dirURL); !ok {
		if err := fs.Create(ctx, dirURL, file.DefaultDirOsMode, true); err != nil {
			return "", fmt.Errorf("failed to create %v: %w", dir, err)
		}
	}
	return location, nil
}

// Config returns the effective configuration
func (s *Service) Config() *Config {
	return s.config
}

// Orchestrator returns the orchestrator for namespace, or nil
func (s *Service) Orchestrator(namespace string) *orchestrator.Service {
	return s.orchestrators[namespace]
}

// Mirror returns the record mirror backing namespace, or nil
func (s *Service) Mirror(namespace string) dao.Service[string, task.Record] {
	return s.mirrors[namespace]
}

// Pipelines returns the pipeline registry for namespace, or nil
func (s *Service) Pipelines(namespace string) *pipeline.Registry {
	return s.pipelines[namespace]
}

// RegisterPipeline registers work as kind in namespace
func (s *Service) RegisterPipeline(namespace, kind string, work pipeline.Work) error {
	registry, ok := s.pipelines[namespace]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownNamespace, namespace)
	}
	if err := registry.Register(kind, work); err != nil {
		return fmt.Errorf("failed to register %v in %v: %w", kind, namespace, err)
	}
	return nil
}

// Submit submits the pipeline registered as kind in namespace
func (s *Service) Submit(ctx context.Context, namespace, kind string, request task.Payload) (*task.Record, error) {
	srv, ok := s.orchestrators[namespace]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownNamespace, namespace)
	}
	work, ok := s.pipelines[namespace].Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownPipeline, kind)
	}
	return srv.Submit(ctx, kind, request, work)
}

// Server returns the HTTP server serving every namespace
func (s *Service) Server() (*server.Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return s.server, nil
	}
	var namespaces []*server.Namespace
	for _, ns := range s.config.Namespaces {
		namespaces = append(namespaces, &server.Namespace{
			Prefix:       ns.Prefix,
			Noun:         ns.Noun,
			Orchestrator: s.orchestrators[ns.Prefix],
			Pipelines:    s.pipelines[ns.Prefix],
		})
	}
	cfg := s.config.Server
	srv, err := server.New(server.Config{
		Addr:           cfg.Addr,
		RateLimit:      cfg.RateLimit,
		Burst:          cfg.Burst,
		StreamInterval: cfg.StreamInterval(),
	}, namespaces...)
	if err != nil {
		return nil, err
	}
	s.server = srv
	return srv, nil
}

// Start reconciles orphaned records, then starts the event listener and
// every orchestrator.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if s.events != nil {
		event.SetListenerOf[task.Update](context.WithoutCancel(ctx), s.events, s.eventHandler)
	}
	for _, ns := range s.config.Namespaces {
		srv := s.orchestrators[ns.Prefix]
		if s.config.Storage.Reconcile {
			if _, err := srv.Reconcile(ctx); err != nil {
				return fmt.Errorf("failed to reconcile %v: %w", ns.Prefix, err)
			}
		}
		if err := srv.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
	}
	s.started = true
	return nil
}

// Shutdown stops the HTTP server, waits for running work and releases storage.
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, ns := range s.config.Namespaces {
		s.orchestrators[ns.Prefix].Shutdown()
	}
	s.close()
	return errors.Join(errs...)
}

func (s *Service) close() {
	if s.events != nil {
		s.events.Close()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Printf("SQLITE_CLOSE_FAILED | err=%v", err)
		}
		s.db = nil
	}
}

// LogEventHandler logs status changes of every task.
func LogEventHandler(e *event.Event[task.Update]) {
	update := e.Data
	if update.Type != task.UpdateStatus {
		return
	}
	if update.Message != "" {
		log.Printf("TASK_STATUS | ns=%s id=%s kind=%s status=%s error=%q", e.Context.Namespace, update.ID, update.Kind, update.Status, update.Message)
		return
	}
	log.Printf("TASK_STATUS | ns=%s id=%s kind=%s status=%s", e.Context.Namespace, update.ID, update.Kind, update.Status)
}
