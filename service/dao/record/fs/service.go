// Package fs mirrors task records as one JSON document per task on any
// storage supported by afs.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/service/dao"
	"github.com/viant/tasker/service/dao/criteria"
)

const extension = ".json"

// Service implements a filesystem-based record storage
type Service struct {
	baseURL string
	fs      afs.Service
	mu      sync.RWMutex
}

var _ dao.Service[string, task.Record] = (*Service)(nil)

// Save writes the full record to <baseURL>/<id>.json, replacing any
// previous content.
func (s *Service) Save(ctx context.Context, record *task.Record) error {
	if record == nil {
		return dao.ErrNilEntity
	}
	if record.ID == "" {
		return dao.ErrInvalidID
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record %v: %w", record.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	recordURL := s.recordURL(record.ID)
	if err = s.fs.Upload(ctx, recordURL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save record to %s: %w", recordURL, err)
	}
	return nil
}

// Load reads a record by id
func (s *Service) Load(ctx context.Context, id string) (*task.Record, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	recordURL := s.recordURL(id)
	exists, err := s.fs.Exists(ctx, recordURL)
	if err != nil {
		return nil, fmt.Errorf("failed to check if record exists: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", dao.ErrNotFound, id)
	}
	data, err := s.fs.DownloadWithURL(ctx, recordURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	return decode(data)
}

// Delete removes a record file
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recordURL := s.recordURL(id)
	exists, err := s.fs.Exists(ctx, recordURL)
	if err != nil {
		return fmt.Errorf("failed to check if record exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", dao.ErrNotFound, id)
	}
	if err := s.fs.Delete(ctx, recordURL); err != nil {
		return fmt.Errorf("failed to delete record file: %w", err)
	}
	return nil
}

// List returns matching records ordered by creation time. Unreadable files
// are logged and skipped.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*task.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.baseURL, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("failed to list record files: %w", err)
	}
	var records []*task.Record
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), extension) {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			log.Printf("RECORD_READ_FAILED | url=%s err=%v", object.URL(), err)
			continue
		}
		record, err := decode(data)
		if err != nil {
			log.Printf("RECORD_DECODE_FAILED | url=%s err=%v", object.URL(), err)
			continue
		}
		if !criteria.FilterByStatus(string(record.Status), parameters) {
			continue
		}
		records = append(records, record)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })
	return records, nil
}

func (s *Service) recordURL(id string) string {
	return url.Join(s.baseURL, id+extension)
}

func decode(data []byte) (*task.Record, error) {
	record := &task.Record{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	if record.ID == "" {
		return nil, errors.New("record has no id")
	}
	return record, nil
}

// New creates a filesystem record storage rooted at baseURL; a plain path
// is treated as a local directory and created when missing.
func New(baseURL string) (*Service, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	fs := afs.New()
	baseURL = url.Normalize(baseURL, file.Scheme)

	ctx := context.Background()
	exists, _ := fs.Exists(ctx, baseURL)
	if !exists {
		if err := fs.Create(ctx, baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	return &Service{baseURL: baseURL, fs: fs}, nil
}
