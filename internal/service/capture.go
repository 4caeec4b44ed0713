package service

import (
	"net/http"

	"github.com/efreitasn/hookrelay/internal/domain"
	"github.com/efreitasn/hookrelay/internal/engine"
	"github.com/efreitasn/hookrelay/internal/store"
)

// Stats combines store and hub counters for reporting.
type Stats struct {
	Captures int
	Hub      engine.HubStats
}

// CaptureService records inbound webhook calls, serves the latest capture per
// identification and opens live streams. It owns the capture store and the
// broadcast hub shared by all handlers.
type CaptureService struct {
	store *store.CaptureStore
	hub   *engine.Hub
}

// NewCaptureService creates a new CaptureService with the given dependencies.
func NewCaptureService(captureStore *store.CaptureStore, hub *engine.Hub) *CaptureService {
	return &CaptureService{
		store: captureStore,
		hub:   hub,
	}
}

// HandleCapture records the call as the latest capture for id, publishes it
// to live subscribers and returns it. Every method is handled identically.
func (s *CaptureService) HandleCapture(id, method string, header http.Header, body string) domain.CapturedRequest {
	req := domain.NewCapturedRequest(method, header, body)
	s.store.Upsert(id, req)
	s.hub.Publish(id, req)
	return req
}

// HandleLatestLookup returns the latest capture for id, or
// domain.ErrCaptureNotFound.
func (s *CaptureService) HandleLatestLookup(id string) (domain.CapturedRequest, error) {
	return s.store.Get(id)
}

// HandleSubscribe opens a live stream of every later capture for id. The
// caller must Close the session when done.
func (s *CaptureService) HandleSubscribe(id string) *StreamSession {
	return newStreamSession(s.hub, s.hub.Subscribe(id))
}

// Stats returns the current store size and hub counters.
func (s *CaptureService) Stats() Stats {
	return Stats{
		Captures: s.store.Len(),
		Hub:      s.hub.Stats(),
	}
}
