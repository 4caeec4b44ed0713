package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/efreitasn/hookrelay/internal/domain"
)

func TestStreamSession_FanOutToTwoSessions(t *testing.T) {
	svc, _ := newTestCaptureService()
	s1 := svc.HandleSubscribe("abc")
	s2 := svc.HandleSubscribe("abc")
	defer s1.Close()
	defer s2.Close()

	for i := 0; i < 3; i++ {
		svc.HandleCapture("abc", http.MethodPost, nil, fmt.Sprint(i))
	}

	for n, s := range []*StreamSession{s1, s2} {
		for i := 0; i < 3; i++ {
			ev, err := nextNow(t, s)
			if err != nil {
				t.Fatalf("session %d event %d: %v", n, i, err)
			}
			if want := "Body: " + fmt.Sprint(i); ev.Request.Body != want {
				t.Fatalf("session %d event %d: got %q, want %q", n, i, ev.Request.Body, want)
			}
		}
		if s.Delivered() != 3 {
			t.Fatalf("session %d: Delivered() = %d, want 3", n, s.Delivered())
		}
	}
}

func TestStreamSession_IDAndKey(t *testing.T) {
	svc, _ := newTestCaptureService()
	s1 := svc.HandleSubscribe("abc")
	s2 := svc.HandleSubscribe("abc")
	defer s1.Close()
	defer s2.Close()

	if s1.Key() != "abc" {
		t.Fatalf("Key() = %q, want abc", s1.Key())
	}
	if s1.ID() == s2.ID() {
		t.Fatal("expected distinct session IDs")
	}
}

func TestStreamSession_Close_ReleasesRegistration(t *testing.T) {
	svc, hub := newTestCaptureService()
	session := svc.HandleSubscribe("abc")

	session.Close()
	session.Close()

	if st := hub.Stats(); st.Subscribers != 0 {
		t.Fatalf("Subscribers = %d, want 0", st.Subscribers)
	}
	if _, err := nextNow(t, session); !errors.Is(err, domain.ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed after Close, got %v", err)
	}
}

func TestStreamSession_Next_PeerDisconnect(t *testing.T) {
	svc, _ := newTestCaptureService()
	session := svc.HandleSubscribe("abc")
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := session.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStreamSession_EndsWhenEntrySwept(t *testing.T) {
	svc, hub := newTestCaptureService()
	session := svc.HandleSubscribe("abc")
	defer session.Close()

	hub.SweepIdle(0)

	if _, err := nextNow(t, session); !errors.Is(err, domain.ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed after sweep, got %v", err)
	}

	// A capture after removal does not reach the old session.
	svc.HandleCapture("abc", http.MethodPost, nil, "after")
	if _, err := nextNow(t, session); !errors.Is(err, domain.ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}

func TestStreamSession_ReportsMissed(t *testing.T) {
	svc, _ := newTestCaptureService() // buffer 16
	session := svc.HandleSubscribe("abc")
	defer session.Close()

	for i := 0; i < 20; i++ {
		svc.HandleCapture("abc", http.MethodPost, nil, fmt.Sprint(i))
	}

	ev, err := nextNow(t, session)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Missed != 4 {
		t.Fatalf("Missed = %d, want 4", ev.Missed)
	}
	if ev.Request.Body != "Body: 4" {
		t.Fatalf("first surviving event = %q, want Body: 4", ev.Request.Body)
	}
}

func TestStreamSession_DeliveredReadConcurrently(t *testing.T) {
	svc, _ := newTestCaptureService()
	s := svc.HandleSubscribe("abc")
	defer s.Close()

	const n = 10
	for i := 0; i < n; i++ {
		svc.HandleCapture("abc", http.MethodPost, nil, fmt.Sprint(i))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			if _, err := s.Next(context.Background()); err != nil {
				t.Errorf("Next() event %d: %v", i, err)
				return
			}
		}
	}()
	for s.Delivered() < n && !t.Failed() {
	}
	wg.Wait()

	if got := s.Delivered(); got != n {
		t.Fatalf("Delivered() = %d, want %d", got, n)
	}
}
