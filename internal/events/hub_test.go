package events

import (
	"testing"
	"time"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ch, unsubscribe := hub.Subscribe(4)
	t.Cleanup(unsubscribe)

	hub.Publish(Event{Table: "flag", Data: map[string]any{"id": 1}})

	select {
	case evt := <-ch:
		if evt.Table != "flag" {
			t.Fatalf("Table = %q, want flag", evt.Table)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("did not receive published event")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ch, unsubscribe := hub.Subscribe(1)
	t.Cleanup(unsubscribe)

	hub.Publish(Event{Table: "execution"})
	hub.Publish(Event{Table: "execution"}) // must not block

	if len(ch) != 1 {
		t.Fatalf("buffered events = %d, want 1 (second publish should be dropped)", len(ch))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ch, unsubscribe := hub.Subscribe(1)
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
	if got := hub.Subscribers(); got != 0 {
		t.Fatalf("Subscribers() = %d, want 0", got)
	}
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Publish(Event{Table: "flag"})
	if got := hub.Subscribers(); got != 0 {
		t.Fatalf("Subscribers() = %d, want 0", got)
	}
	ch, unsubscribe := hub.Subscribe(1)
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel from nil hub")
	}
}
