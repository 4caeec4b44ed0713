package store

import (
	"sync"

	"github.com/efreitasn/hookrelay/internal/domain"
)

// CaptureStore is a thread-safe in-memory store holding the most recent
// capture per identification. Entries live for the lifetime of the process.
type CaptureStore struct {
	mu       sync.RWMutex
	captures map[string]domain.CapturedRequest // identification → latest capture
}

// NewCaptureStore creates an empty CaptureStore.
func NewCaptureStore() *CaptureStore {
	return &CaptureStore{
		captures: make(map[string]domain.CapturedRequest),
	}
}

// Upsert records req as the latest capture for id, fully replacing any
// previous value.
func (s *CaptureStore) Upsert(id string, req domain.CapturedRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.captures[id] = req
}

// Get returns a copy of the latest capture for id. It returns
// domain.ErrCaptureNotFound if nothing was ever captured for id.
func (s *CaptureStore) Get(id string) (domain.CapturedRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.captures[id]
	if !ok {
		return domain.CapturedRequest{}, domain.ErrCaptureNotFound
	}
	return req, nil
}

// Len returns the number of identifications with a recorded capture.
func (s *CaptureStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.captures)
}
