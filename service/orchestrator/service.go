package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/viant/tasker/internal/clock"
	"github.com/viant/tasker/internal/idgen"
	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/policy"
	"github.com/viant/tasker/progress"
	"github.com/viant/tasker/service/cancel"
	"github.com/viant/tasker/service/event"
	"github.com/viant/tasker/service/executor"
	"github.com/viant/tasker/service/messaging/memory"
	"github.com/viant/tasker/service/processor"
	"github.com/viant/tasker/service/store"
)

// CancellationRequested is the log line appended by Cancel.
const CancellationRequested = "Cancellation requested"

type (
	// Work is the unit of work accepted by Submit.
	Work = executor.Work
	// ProgressFunc reports progress from within work.
	ProgressFunc = executor.ProgressFunc
	// LogFunc appends a log line from within work.
	LogFunc = executor.LogFunc
)

// job is the item handed to the worker pool.
type job struct {
	ID   string
	Work Work
}

// entry holds per-task bookkeeping that is not part of the record.
type entry struct {
	done     chan struct{}
	doneOnce sync.Once

	version uint64
	saveMu  sync.Mutex
	saved   uint64
}

func (e *entry) release() {
	e.doneOnce.Do(func() { close(e.done) })
}

// snapshot is a record copy waiting to be written to the mirror.
type snapshot struct {
	entry   *entry
	version uint64
	record  *task.Record
}

// Service runs submitted work on a bounded pool
type Service struct {
	name     string
	workers  int
	policy   *policy.Policy
	events   *event.Service
	tracker  *progress.Progress
	executor executor.Service

	mu      sync.Mutex
	store   *store.Store
	tokens  *cancel.Registry
	entries map[string]*entry

	queue *memory.Queue[job]
	pool  *processor.Service[job]
}

// New creates an orchestrator named name backed by st.
func New(name string, st *store.Store, options ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	s := &Service{
		name:    name,
		workers: processor.DefaultWorkerCount,
		store:   st,
		tokens:  cancel.NewRegistry(),
		entries: map[string]*entry{},
		queue:   memory.NewQueue[job](memory.Config{}),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.tracker == nil {
		s.tracker = progress.New(name)
	}
	if s.executor == nil {
		s.executor = executor.NewService()
	}
	var err error
	s.pool, err = processor.New[job](
		processor.WithName[job](name),
		processor.WithMessageQueue[job](s.queue),
		processor.WithWorkers[job](s.workers),
		processor.WithHandler[job](s.run),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the orchestrator name
func (s *Service) Name() string {
	return s.name
}

// Workers returns the pool size
func (s *Service) Workers() int {
	return s.pool.Workers()
}

// Tracker returns the per-status counters
func (s *Service) Tracker() *progress.Progress {
	return s.tracker
}

// Start launches the worker pool.
func (s *Service) Start(ctx context.Context) error {
	return s.pool.Start(ctx)
}

// Reconcile fails records a previous process left unfinished in the mirror.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, err := s.store.Reconcile(ctx, clock.Now())
	if count > 0 {
		log.Printf("TASK_RECONCILED | ns=%s count=%d", s.name, count)
	}
	return count, err
}

// Shutdown stops the pool, waiting for running work to return, and fails
// tasks that never started.
func (s *Service) Shutdown() {
	s.pool.Shutdown()
	s.queue.Close()

	ctx := context.Background()
	for {
		msg, err := s.queue.Consume(ctx)
		if err != nil {
			break
		}
		s.abandon(ctx, msg.T().ID, ErrShutdown)
		_ = msg.Ack()
	}
}

// Submit validates and enqueues work, returning the queued record without
// waiting for it to start.
func (s *Service) Submit(ctx context.Context, kind string, payload task.Payload, work Work) (*task.Record, error) {
	if strings.TrimSpace(kind) == "" {
		return nil, ErrInvalidKind
	}
	if work == nil {
		return nil, ErrNilWork
	}
	if err := s.policy.Check(ctx, kind, payload); err != nil {
		return nil, err
	}

	record := task.New(idgen.New(), kind, payload, clock.Now())
	s.mu.Lock()
	s.store.Add(record)
	s.tokens.Register(record.ID)
	e := &entry{done: make(chan struct{})}
	s.entries[record.ID] = e
	snap := s.snapshot(e, record)
	s.mu.Unlock()

	s.flush(ctx, snap)
	s.tracker.Update(progress.Transition("", task.StatusQueued))
	s.publish(ctx, snap.record, task.UpdateStatus, "")

	if err := s.queue.Publish(context.WithoutCancel(ctx), &job{ID: record.ID, Work: work}); err != nil {
		ret := s.abandon(ctx, record.ID, err)
		return ret, fmt.Errorf("failed to schedule %v %v: %w", kind, record.ID, err)
	}
	return snap.record.Clone(), nil
}

// Get returns a snapshot of the record for id.
func (s *Service) Get(id string) (*task.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.store.Lookup(id)
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// List returns snapshots in submission order, optionally filtered by status.
func (s *Service) List(status *task.Status) []*task.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.store.Records()
	ret := make([]*task.Record, 0, len(records))
	for _, record := range records {
		if status != nil && record.Status != *status {
			continue
		}
		ret = append(ret, record.Clone())
	}
	return ret
}

// Cancel sets the task's signal and reports whether the task is known. The
// status of a terminal task is left unchanged.
func (s *Service) Cancel(ctx context.Context, id string) bool {
	s.mu.Lock()
	if !s.tokens.Cancel(id) {
		s.mu.Unlock()
		return false
	}
	record, _ := s.store.Lookup(id)
	record.AppendLog(CancellationRequested)
	snap := s.snapshot(s.entries[id], record)
	s.mu.Unlock()

	log.Printf("TASK_CANCEL | ns=%s id=%s kind=%s status=%s", s.name, id, record.Kind, snap.record.Status)
	s.flush(ctx, snap)
	s.publish(ctx, snap.record, task.UpdateLog, CancellationRequested)
	return true
}

// Wait blocks until the task reaches a terminal status or ctx is done.
func (s *Service) Wait(ctx context.Context, id string) (*task.Record, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, id)
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	record, _ := s.Get(id)
	return record, nil
}

// run executes one job on a pool worker.
func (s *Service) run(ctx context.Context, j *job) error {
	s.mu.Lock()
	record, ok := s.store.Lookup(j.ID)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrNotFound, j.ID)
	}
	token, _ := s.tokens.Lookup(j.ID)
	if err := record.Start(clock.Now()); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.snapshot(s.entries[j.ID], record)
	s.mu.Unlock()

	s.flush(ctx, snap)
	s.tracker.Update(progress.Transition(task.StatusQueued, task.StatusRunning))
	s.publish(ctx, snap.record, task.UpdateStatus, "")

	workCtx, cancelFn := cancel.Context(ctx, token)
	defer cancelFn()
	result, err := s.executor.Execute(workCtx, &executor.Invocation{
		ID:         j.ID,
		Kind:       record.Kind,
		Request:    snap.record.Request,
		Work:       j.Work,
		OnProgress: s.onProgress(ctx, j.ID),
		OnLog:      s.onLog(ctx, j.ID),
		Signal:     token,
	})
	s.finish(ctx, j.ID, token, result, err)
	return nil
}

func (s *Service) finish(ctx context.Context, id string, token *cancel.Token, result task.Payload, err error) {
	now := clock.Now()
	s.mu.Lock()
	record, _ := s.store.Lookup(id)
	var tErr error
	switch {
	case err != nil && !(token.Canceled() && errors.Is(err, context.Canceled)):
		tErr = record.Fail(err, now)
	case token.Canceled():
		tErr = record.Cancel(result, now)
	default:
		tErr = record.Succeed(result, now)
	}
	e := s.entries[id]
	snap := s.snapshot(e, record)
	s.mu.Unlock()
	defer e.release()
	if tErr != nil {
		log.Printf("TASK_TRANSITION_FAILED | ns=%s id=%s err=%v", s.name, id, tErr)
		return
	}

	s.flush(ctx, snap)
	s.tracker.Update(progress.Transition(task.StatusRunning, snap.record.Status))
	s.publish(ctx, snap.record, task.UpdateStatus, "")
}

// abandon fails a task that can no longer run and returns its snapshot.
func (s *Service) abandon(ctx context.Context, id string, cause error) *task.Record {
	s.mu.Lock()
	record, ok := s.store.Lookup(id)
	if !ok {
		s.mu.Unlock()
		return nil
	}
	from := record.Status
	if err := record.Abandon(cause.Error(), clock.Now()); err != nil {
		s.mu.Unlock()
		return record.Clone()
	}
	e := s.entries[id]
	snap := s.snapshot(e, record)
	s.mu.Unlock()

	s.flush(ctx, snap)
	s.tracker.Update(progress.Transition(from, task.StatusFailed))
	s.publish(ctx, snap.record, task.UpdateStatus, "")
	e.release()
	return snap.record.Clone()
}

func (s *Service) onProgress(ctx context.Context, id string) ProgressFunc {
	return func(value float64, message string) {
		s.mu.Lock()
		record, _ := s.store.Lookup(id)
		if record.Status.IsTerminal() {
			s.mu.Unlock()
			return
		}
		record.AppendProgress(value, message, clock.Now())
		snap := s.snapshot(s.entries[id], record)
		s.mu.Unlock()
		s.flush(ctx, snap)
		s.publish(ctx, snap.record, task.UpdateProgress, "")
	}
}

func (s *Service) onLog(ctx context.Context, id string) LogFunc {
	return func(message string) {
		s.mu.Lock()
		record, _ := s.store.Lookup(id)
		if record.Status.IsTerminal() {
			s.mu.Unlock()
			return
		}
		record.AppendLog(message)
		snap := s.snapshot(s.entries[id], record)
		s.mu.Unlock()
		s.flush(ctx, snap)
		s.publish(ctx, snap.record, task.UpdateLog, message)
	}
}

// snapshot must be called with s.mu held.
func (s *Service) snapshot(e *entry, record *task.Record) *snapshot {
	e.version++
	return &snapshot{entry: e, version: e.version, record: record.Clone()}
}

// flush writes snap unless a newer snapshot of the same task was already
// written. Persistence failures are logged; the in-memory record stays
// authoritative.
func (s *Service) flush(ctx context.Context, snap *snapshot) {
	snap.entry.saveMu.Lock()
	defer snap.entry.saveMu.Unlock()
	if snap.version <= snap.entry.saved {
		return
	}
	if err := s.store.Persist(context.WithoutCancel(ctx), snap.record); err != nil {
		log.Printf("TASK_PERSIST_FAILED | ns=%s id=%s status=%s err=%v", s.name, snap.record.ID, snap.record.Status, err)
		return
	}
	snap.entry.saved = snap.version
}

func (s *Service) publish(ctx context.Context, record *task.Record, updateType task.UpdateType, message string) {
	if s.events == nil {
		return
	}
	update := record.NewUpdate(updateType, message)
	eCtx := &event.Context{Namespace: s.name, TaskID: record.ID, Kind: record.Kind, EventType: string(updateType)}
	if err := event.PublisherOf[task.Update](s.events).Publish(context.WithoutCancel(ctx), event.NewEvent(eCtx, *update)); err != nil {
		log.Printf("EVENT_PUBLISH_FAILED | ns=%s id=%s type=%s err=%v", s.name, record.ID, updateType, err)
	}
}
