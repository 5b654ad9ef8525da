package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStorage implements FormStore using an in-memory map.
// Data is lost when process terminates.
type InMemoryStorage struct {
	mu    sync.RWMutex
	forms map[string]Form
	now   func() time.Time
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		forms: make(map[string]Form),
		now:   time.Now,
	}
}

// SaveForm saves the form for a session.
func (s *InMemoryStorage) SaveForm(ctx context.Context, sessionID string, form Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := cloneForm(form)
	copied.UpdatedAt = s.now()
	s.forms[sessionID] = copied
	return nil
}

// LoadForm loads the form for a session.
func (s *InMemoryStorage) LoadForm(ctx context.Context, sessionID string) (Form, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	form, ok := s.forms[sessionID]
	if !ok {
		return Form{Sample: -1}, false, nil
	}
	return cloneForm(form), true, nil
}

// DeleteForm deletes the form for a session.
func (s *InMemoryStorage) DeleteForm(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.forms, sessionID)
	return nil
}

// ListSessions lists all session IDs, most recently updated first.
func (s *InMemoryStorage) ListSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.forms))
	for sessionID := range s.forms {
		sessions = append(sessions, sessionID)
	}
	sort.Slice(sessions, func(i, j int) bool {
		a, b := s.forms[sessions[i]].UpdatedAt, s.forms[sessions[j]].UpdatedAt
		if a.Equal(b) {
			return sessions[i] < sessions[j]
		}
		return a.After(b)
	})
	return sessions, nil
}

// Close is a no-op.
func (s *InMemoryStorage) Close() error {
	return nil
}

var _ FormStore = (*InMemoryStorage)(nil)
