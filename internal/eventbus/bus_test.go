package eventbus

import (
	"testing"
	"time"

	"pkt.systems/termplex/schema"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(schema.ManagerEvent{Type: schema.ManagerEventSessionAdded, Session: "s1"})

	select {
	case got := <-ch:
		if got.Type != schema.ManagerEventSessionAdded {
			t.Fatalf("expected session added event, got %v", got.Type)
		}
		if got.Session != "s1" {
			t.Fatalf("unexpected payload: %+v", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	_, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(schema.ManagerEvent{Type: schema.ManagerEventStatus})
	done := make(chan struct{})
	go func() {
		bus.Publish(schema.ManagerEvent{Type: schema.ManagerEventStatus})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
	if got := bus.Dropped(); got != 1 {
		t.Fatalf("expected 1 dropped delivery, got %d", got)
	}
}

func TestNilBusIsInert(t *testing.T) {
	var bus *Bus
	ch, cancel := bus.Subscribe()
	cancel()
	if ch != nil {
		t.Fatalf("expected nil channel from nil bus")
	}
	bus.Publish(schema.ManagerEvent{Type: schema.ManagerEventPanel})
}
