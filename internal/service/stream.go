package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/efreitasn/hookrelay/internal/domain"
	"github.com/efreitasn/hookrelay/internal/engine"
	"github.com/google/uuid"
)

// Event is one record of a live stream. Missed counts captures this session
// lost to backpressure just before Request.
type Event struct {
	Request domain.CapturedRequest
	Missed  uint64
}

// StreamSession adapts one hub subscription into a pull-based sequence of
// events. A session cannot be restarted once it ends.
type StreamSession struct {
	hub *engine.Hub
	sub *engine.Subscription

	closeOnce sync.Once
	delivered atomic.Uint64
}

func newStreamSession(hub *engine.Hub, sub *engine.Subscription) *StreamSession {
	return &StreamSession{hub: hub, sub: sub}
}

// ID returns the identifier of the underlying subscription.
func (s *StreamSession) ID() uuid.UUID {
	return s.sub.ID()
}

// Key returns the identification the session streams.
func (s *StreamSession) Key() string {
	return s.sub.Key()
}

// Next blocks until the next capture arrives. It returns
// domain.ErrStreamClosed when the session's channel has closed and been
// drained, or ctx.Err() when ctx ends first (typically a peer disconnect).
func (s *StreamSession) Next(ctx context.Context) (Event, error) {
	d, err := s.sub.Recv(ctx)
	if err != nil {
		return Event{}, err
	}
	s.delivered.Add(1)
	return Event{Request: d.Request, Missed: d.Missed}, nil
}

// Delivered returns how many events Next has returned.
func (s *StreamSession) Delivered() uint64 {
	return s.delivered.Load()
}

// Close releases the session's hub registration. Safe to call more than once.
func (s *StreamSession) Close() {
	s.closeOnce.Do(func() {
		s.hub.Unsubscribe(s.sub)
	})
}
