// Package memory implements an in-process task record mirror.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/service/dao"
	"github.com/viant/tasker/service/dao/criteria"
)

// Service implements an in-memory, thread-safe store for task records. All
// API methods work with copies to eliminate data races between goroutines.
type Service struct {
	records map[string]*task.Record
	mux     sync.RWMutex
}

var _ dao.Service[string, task.Record] = (*Service)(nil)

func (s *Service) Save(_ context.Context, record *task.Record) error {
	if record == nil {
		return dao.ErrNilEntity
	}
	if record.ID == "" {
		return dao.ErrInvalidID
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *Service) Load(_ context.Context, id string) (*task.Record, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mux.RLock()
	record, ok := s.records[id]
	s.mux.RUnlock()
	if !ok {
		return nil, dao.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *Service) Delete(_ context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, ok := s.records[id]; !ok {
		return dao.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// List returns matching records ordered by creation time.
func (s *Service) List(_ context.Context, parameters ...*dao.Parameter) ([]*task.Record, error) {
	s.mux.RLock()
	out := make([]*task.Record, 0, len(s.records))
	for _, record := range s.records {
		if !criteria.FilterByStatus(string(record.Status), parameters) {
			continue
		}
		out = append(out, record.Clone())
	}
	s.mux.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// New creates an empty in-memory mirror
func New() *Service {
	return &Service{records: map[string]*task.Record{}}
}
