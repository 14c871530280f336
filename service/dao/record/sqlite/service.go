// Package sqlite mirrors task records into a SQLite table, one row per task,
// using the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/service/dao"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Service implements a SQLite-backed record storage
type Service struct {
	db    *sql.DB
	table string
}

var _ dao.Service[string, task.Record] = (*Service)(nil)

// Open opens (or creates) a SQLite database file.
func Open(location string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, location)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %v: %w", location, err)
	}
	// a single connection serializes writers and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	return db, nil
}

// New creates the table when missing and returns a service bound to it.
func New(ctx context.Context, db *sql.DB, table string) (*Service, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	body TEXT NOT NULL
)`, table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create table %v: %w", table, err)
	}
	return &Service{db: db, table: table}, nil
}

// Save upserts the full record document
func (s *Service) Save(ctx context.Context, record *task.Record) error {
	if record == nil {
		return dao.ErrNilEntity
	}
	if record.ID == "" {
		return dao.ErrInvalidID
	}
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record %v: %w", record.ID, err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, status, created_at, body) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET status = excluded.status, body = excluded.body`, s.table)
	if _, err = s.db.ExecContext(ctx, query, record.ID, string(record.Status), record.CreatedAt.UTC().Format(time.RFC3339Nano), string(body)); err != nil {
		return fmt.Errorf("failed to save record %v: %w", record.ID, err)
	}
	return nil
}

// Load reads a record by id
func (s *Service) Load(ctx context.Context, id string) (*task.Record, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	var body string
	query := fmt.Sprintf(`SELECT body FROM %s WHERE id = ?`, s.table)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", dao.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record %v: %w", id, err)
	}
	return decode(body)
}

// Delete removes a record row
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table), id)
	if err != nil {
		return fmt.Errorf("failed to delete record %v: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: %s", dao.ErrNotFound, id)
	}
	return nil
}

// List returns matching records ordered by creation time.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*task.Record, error) {
	query := fmt.Sprintf(`SELECT body FROM %s`, s.table)
	var args []interface{}
	if statuses := dao.Statuses(parameters); len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at, rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()
	var records []*task.Record
	for rows.Next() {
		var body string
		if err = rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record, err := decode(body)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func decode(body string) (*task.Record, error) {
	record := &task.Record{}
	if err := json.Unmarshal([]byte(body), record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return record, nil
}
