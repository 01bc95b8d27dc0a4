package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("events channel closed while waiting for kind %v", kind)
			}
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// mustPresence waits for a presence event with exactly the given user ids.
func mustPresence(t *testing.T, ch <-chan *Event, wantIDs ...string) []Presence {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	var last []Presence
	for time.Now().Before(deadline) {
		ev := mustEvent(t, ch, EventPresence)
		last = ev.Online
		if sameIDs(ev.Online, wantIDs) {
			return ev.Online
		}
	}
	t.Fatalf("expected presence %v, last seen %+v", wantIDs, last)
	return nil
}

func sameIDs(online []Presence, ids []string) bool {
	if len(online) != len(ids) {
		return false
	}
	seen := make(map[string]bool, len(online))
	for _, p := range online {
		seen[p.UserID] = true
	}
	for _, id := range ids {
		if !seen[id] {
			return false
		}
	}
	return true
}

func waitClosed(t *testing.T, ch <-chan *Event) {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("events channel not closed")
		}
	}
}

// recordingSink counts presence snapshots pushed by the hub.
type recordingSink struct {
	snapshots chan []Presence
}

func newRecordingSink() *recordingSink {
	return &recordingSink{snapshots: make(chan []Presence, 64)}
}

func (s *recordingSink) PresenceChanged(snapshot []Presence) {
	s.snapshots <- snapshot
}

// fakePinger answers probes according to ack; a nil ack blocks until ctx ends.
type fakePinger struct {
	ack   func() error
	calls chan struct{}
}

func (p *fakePinger) Ping(ctx context.Context) error {
	if p.calls != nil {
		select {
		case p.calls <- struct{}{}:
		default:
		}
	}
	if p.ack != nil {
		return p.ack()
	}
	<-ctx.Done()
	return errors.Join(ErrTransport, ctx.Err())
}
