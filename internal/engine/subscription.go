package engine

import (
	"context"
	"sync"

	"github.com/efreitasn/hookrelay/internal/domain"
	"github.com/google/uuid"
)

// Delivery is one message handed to a subscriber. Missed is the number of
// messages discarded for this subscriber since its previous delivery.
type Delivery struct {
	Request domain.CapturedRequest
	Missed  uint64
}

// Subscription is a live receiver bound to one hub entry. Messages are held in
// a bounded FIFO; when it is full the oldest message is dropped so that a slow
// reader never stalls the publisher.
type Subscription struct {
	id    uuid.UUID
	key   string
	entry *hubEntry

	mu     sync.Mutex
	buf    []domain.CapturedRequest // ring buffer, len == capacity
	head   int
	size   int
	missed uint64
	closed bool

	notify chan struct{} // capacity 1, signalled on every push
	done   chan struct{} // closed when the subscription closes
}

func newSubscription(key string, entry *hubEntry, capacity int) *Subscription {
	if capacity < 1 {
		capacity = 1
	}
	return &Subscription{
		id:     uuid.New(),
		key:    key,
		entry:  entry,
		buf:    make([]domain.CapturedRequest, capacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// ID returns the unique identifier of the subscription.
func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Key returns the identification the subscription is bound to.
func (s *Subscription) Key() string {
	return s.key
}

// push appends req, evicting the oldest buffered message when full. It
// reports whether a message was dropped. Pushing to a closed subscription is
// a no-op.
func (s *Subscription) push(req domain.CapturedRequest) (dropped bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	capacity := len(s.buf)
	if s.size == capacity {
		s.head = (s.head + 1) % capacity
		s.size--
		s.missed++
		dropped = true
	}
	s.buf[(s.head+s.size)%capacity] = req
	s.size++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return dropped
}

// pop removes the oldest buffered message. ok is false when the buffer is
// empty; closed reports whether no further messages can arrive.
func (s *Subscription) pop() (d Delivery, ok, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size == 0 {
		return Delivery{}, false, s.closed
	}
	d.Request = s.buf[s.head]
	d.Missed = s.missed
	s.buf[s.head] = domain.CapturedRequest{}
	s.head = (s.head + 1) % len(s.buf)
	s.size--
	s.missed = 0
	return d, true, s.closed
}

// Recv blocks until a message is available, the subscription is closed and
// drained, or ctx is done. It returns domain.ErrStreamClosed once closed and
// empty, and ctx.Err() on cancellation.
func (s *Subscription) Recv(ctx context.Context) (Delivery, error) {
	for {
		d, ok, closed := s.pop()
		if ok {
			return d, nil
		}
		if closed {
			return Delivery{}, domain.ErrStreamClosed
		}

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		}
	}
}

// Closed reports whether the subscription has been closed.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Pending returns the number of buffered, not yet received messages.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// close marks the subscription closed. Already buffered messages can still
// be received. Safe to call more than once.
func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
