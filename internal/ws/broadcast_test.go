package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Cyberlandslaget/angrepa/internal/events"
)

func TestServeSubscriberForwardsHubEvents(t *testing.T) {
	t.Parallel()

	hub := events.NewHub()
	s := NewServer("", hub)

	srv := httptest.NewServer(http.HandlerFunc(s.serveSubscriber))
	defer srv.Close()

	conn := dialWebSocket(t, srv.URL)
	defer func() { _ = conn.Close() }()

	// Give the handler a moment to register its subscription before
	// publishing, since Subscribe happens after the handshake completes.
	time.Sleep(20 * time.Millisecond)
	hub.Publish(events.Event{Table: "flag", Data: map[string]any{"id": float64(1)}})

	opcode, payload, err := readServerFrame(conn)
	if err != nil {
		t.Fatalf("readServerFrame: %v", err)
	}
	if opcode != OpText {
		t.Fatalf("opcode = %d, want OpText", opcode)
	}

	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["table"] != "flag" {
		t.Fatalf("table = %v, want flag", got["table"])
	}
}

func TestServeSubscriberExitsOnClientDisconnect(t *testing.T) {
	t.Parallel()

	hub := events.NewHub()
	s := NewServer("", hub)

	srv := httptest.NewServer(http.HandlerFunc(s.serveSubscriber))
	defer srv.Close()

	conn := dialWebSocket(t, srv.URL)
	_ = conn.Close()

	// The hub's subscriber count should settle back to zero once the
	// handler notices the closed connection and unsubscribes.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Subscribers() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("subscriber count = %d after disconnect, want 0", hub.Subscribers())
}
