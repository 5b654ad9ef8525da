package web

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// frameSink hands rendered frames from the executor goroutine to the
// response writer. Only the newest pending frame is kept; a frame identical
// to the previously accepted one is dropped.
type frameSink struct {
	mu       sync.Mutex
	pending  string
	has      bool
	lastHash uint64
	accepted int
	ready    chan struct{}
}

func newFrameSink() *frameSink {
	return &frameSink{ready: make(chan struct{}, 1)}
}

// Put offers a frame. It never blocks.
func (s *frameSink) Put(frame string) {
	h := xxhash.Sum64String(frame)

	s.mu.Lock()
	if s.accepted > 0 && h == s.lastHash {
		s.mu.Unlock()
		return
	}
	s.pending, s.has, s.lastHash = frame, true, h
	s.accepted++
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled after Put stores a frame.
func (s *frameSink) Ready() <-chan struct{} {
	return s.ready
}

// Take removes and returns the pending frame.
func (s *frameSink) Take() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.has {
		return "", false
	}
	frame := s.pending
	s.pending, s.has = "", false
	return frame, true
}
