// Package store keeps the authoritative in-memory registry of task records
// and mirrors every change to a durable dao.Service.
//
// Store is not safe for concurrent use; the owning orchestrator serializes
// all access behind its own mutex.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/service/dao"
)

// OrphanedReason is recorded on tasks found unfinished in the mirror at startup.
const OrphanedReason = "orphaned: process restarted before completion"

// Store maps task id to record, preserving submission order.
type Store struct {
	records map[string]*task.Record
	order   []string
	mirror  dao.Service[string, task.Record]
}

// New creates a store; a nil mirror disables persistence.
func New(mirror dao.Service[string, task.Record]) *Store {
	return &Store{records: map[string]*task.Record{}, mirror: mirror}
}

// Add registers a new record. Records are never removed.
func (s *Store) Add(record *task.Record) {
	if _, ok := s.records[record.ID]; !ok {
		s.order = append(s.order, record.ID)
	}
	s.records[record.ID] = record
}

// Lookup returns the live record for id.
func (s *Store) Lookup(id string) (*task.Record, bool) {
	record, ok := s.records[id]
	return record, ok
}

// Records returns live records in submission order.
func (s *Store) Records() []*task.Record {
	ret := make([]*task.Record, 0, len(s.order))
	for _, id := range s.order {
		ret = append(ret, s.records[id])
	}
	return ret
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.order)
}

// Persist writes a snapshot of record to the mirror, replacing the previous
// one. It only touches the mirror, so callers may invoke it without holding
// the lock that guards the registry.
func (s *Store) Persist(ctx context.Context, record *task.Record) error {
	if s.mirror == nil {
		return nil
	}
	return s.mirror.Save(ctx, record.Clone())
}

// Reconcile marks mirrored records left queued or running by a previous
// process as failed. It does not load them into memory.
func (s *Store) Reconcile(ctx context.Context, now time.Time) (int, error) {
	if s.mirror == nil {
		return 0, nil
	}
	orphans, err := s.mirror.List(ctx, dao.NewParameter(dao.StatusParameter, string(task.StatusQueued), string(task.StatusRunning)))
	if err != nil {
		return 0, fmt.Errorf("failed to list unfinished records: %w", err)
	}
	count := 0
	for _, orphan := range orphans {
		if _, live := s.records[orphan.ID]; live {
			continue
		}
		if err = orphan.Abandon(OrphanedReason, now); err != nil {
			continue
		}
		if err = s.mirror.Save(ctx, orphan); err != nil {
			return count, fmt.Errorf("failed to reconcile record %v: %w", orphan.ID, err)
		}
		count++
	}
	return count, nil
}
