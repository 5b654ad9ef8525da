package workflow

import "sync"

// Snapshot is an independent copy of a store's results keyed by step title.
type Snapshot map[string]Result

// Get returns the result for a title.
func (s Snapshot) Get(title string) (Result, bool) {
	r, ok := s[title]
	return r, ok
}

// Store holds the results of one run keyed by step title.
// It is safe for concurrent use: the executor writes while renderers read.
type Store struct {
	mu      sync.RWMutex
	results map[string]Result
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{results: make(map[string]Result)}
}

// Get returns the current result for a step.
func (s *Store) Get(title string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[title]
	return r.clone(), ok
}

// Set records (or overwrites) the result for a step.
func (s *Store) Set(title string, r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[title] = r.clone()
}

// Clear removes every result.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = make(map[string]Result)
}

// Len returns the number of recorded results.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Snapshot returns a deep copy of all results.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(Snapshot, len(s.results))
	for title, r := range s.results {
		snap[title] = r.clone()
	}
	return snap
}
