// Package checkpoint records which fetch tasks have completed so interrupted
// runs resume without refetching.
package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one completed task
type Entry struct {
	TaskID      string    `json:"task_id"`
	InterfaceID string    `json:"interface_id"`
	OutputPath  string    `json:"output_path"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store is the checkpoint log used by the fetch layer
type Store interface {
	MarkCompleted(ctx context.Context, e Entry) error
	Completed(ctx context.Context) (map[string]struct{}, error)
	IsCompleted(ctx context.Context, taskID string) (bool, error)
	Close() error
}

// SQLiteStore keeps the log in a SQLite database. Writes go through a single
// writer lock and a transaction, so readers observe either the previous or
// the new complete set.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLite opens (creating if needed) the checkpoint database at path
func NewSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create checkpoint schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// MarkCompleted appends a completion. Recording a task twice keeps the
// first entry.
func (s *SQLiteStore) MarkCompleted(ctx context.Context, e Entry) error {
	if e.TaskID == "" {
		return fmt.Errorf("checkpoint entry without task id")
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin checkpoint transaction: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO completed_tasks
		(task_id, interface_id, output_path, completed_at)
		VALUES (?, ?, ?, ?)`,
		e.TaskID, e.InterfaceID, e.OutputPath, e.CompletedAt,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record task %s: %w", e.TaskID, err)
	}
	return tx.Commit()
}

// Completed returns every completed task id
func (s *SQLiteStore) Completed(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id FROM completed_tasks`)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		done[id] = struct{}{}
	}
	return done, rows.Err()
}

// IsCompleted reports whether taskID has been recorded
func (s *SQLiteStore) IsCompleted(ctx context.Context, taskID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM completed_tasks WHERE task_id = ?`, taskID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query checkpoint %s: %w", taskID, err)
	}
	return n > 0, nil
}

// Entries lists completions for an interface, oldest first. An empty
// interface id lists everything.
func (s *SQLiteStore) Entries(ctx context.Context, interfaceID string) ([]Entry, error) {
	query := `SELECT task_id, interface_id, output_path, completed_at FROM completed_tasks`
	var args []any
	if interfaceID != "" {
		query += ` WHERE interface_id = ?`
		args = append(args, interfaceID)
	}
	query += ` ORDER BY completed_at, task_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TaskID, &e.InterfaceID, &e.OutputPath, &e.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// MemoryStore is an in-process Store for replay runs and tests
type MemoryStore struct {
	mu   sync.RWMutex
	done map[string]Entry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{done: make(map[string]Entry)}
}

// MarkCompleted records e unless the task is already present
func (m *MemoryStore) MarkCompleted(_ context.Context, e Entry) error {
	if e.TaskID == "" {
		return fmt.Errorf("checkpoint entry without task id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.done[e.TaskID]; !ok {
		m.done[e.TaskID] = e
	}
	return nil
}

// Completed returns a snapshot of completed task ids
func (m *MemoryStore) Completed(context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]struct{}, len(m.done))
	for id := range m.done {
		out[id] = struct{}{}
	}
	return out, nil
}

// IsCompleted reports whether taskID has been recorded
func (m *MemoryStore) IsCompleted(_ context.Context, taskID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.done[taskID]
	return ok, nil
}

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
