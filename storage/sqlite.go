package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteStorage implements FormStore using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSqlite(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newSqlite(db)
}

func newSqlite(db *sql.DB) (*SqliteStorage, error) {
	storage := &SqliteStorage{db: db, now: time.Now}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS forms (
			session_id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_forms_updated
		ON forms(updated_at DESC);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveForm saves the form for a session, replacing any previous one.
func (s *SqliteStorage) SaveForm(ctx context.Context, sessionID string, form Form) error {
	form.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("failed to encode form: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO forms (session_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		sessionID, string(data), form.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save form: %w", err)
	}
	return nil
}

// LoadForm loads the form for a session.
func (s *SqliteStorage) LoadForm(ctx context.Context, sessionID string) (Form, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM forms WHERE session_id = ?",
		sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Form{Sample: -1}, false, nil
	}
	if err != nil {
		return Form{}, false, fmt.Errorf("failed to load form: %w", err)
	}

	var form Form
	if err := json.Unmarshal([]byte(data), &form); err != nil {
		return Form{}, false, fmt.Errorf("invalid form data for session %q: %w", sessionID, err)
	}
	return form, true, nil
}

// DeleteForm deletes the form for a session.
func (s *SqliteStorage) DeleteForm(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM forms WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete form: %w", err)
	}
	return nil
}

// ListSessions lists all session IDs, most recently updated first.
func (s *SqliteStorage) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id FROM forms ORDER BY updated_at DESC, session_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{} // Start with empty slice, not nil
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sessionID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

var _ FormStore = (*SqliteStorage)(nil)
