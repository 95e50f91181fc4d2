package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Cyberlandslaget/angrepa/internal/events"
)

// Server is the notification bus's dedicated listener: its own bind
// address, independent of the control-plane HTTP server, serving nothing
// but the upgrade endpoint that fans out an *events.Hub to subscribers.
// Splitting the two mirrors how the runner's own notification listener
// ran on a separate port from its control API.
type Server struct {
	addr string
	hub  *events.Hub
}

// NewServer builds a Server that, once Run, listens on addr.
func NewServer(addr string, hub *events.Hub) *Server {
	return &Server{addr: addr, hub: hub}
}

// Run binds addr and serves subscribers until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /notify/ws", s.serveSubscriber)

	srv := &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("notification bus listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// serveSubscriber upgrades the request and forwards every hub event as a
// JSON text frame until the client disconnects or a write fails.
func (s *Server) serveSubscriber(w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// The http.Server's read/write deadlines stay on a hijacked connection;
	// clear them so the stream lasts until the client leaves or a write fails.
	_ = conn.conn.SetDeadline(time.Time{})

	// The hub only ever pushes; nothing reads a client's own frames. A
	// dedicated reader still has to drain the connection so a close frame
	// (or a broken pipe) is noticed promptly instead of leaking the
	// subscription until the next failed write.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sub, unsubscribe := s.hub.Subscribe(32)
	defer unsubscribe()

	for {
		select {
		case <-gone:
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			payload, err := json.Marshal(map[string]any{
				"table": event.Table,
				"data":  event.Data,
			})
			if err != nil {
				slog.Warn("failed to marshal event for websocket broadcast", "table", event.Table, "error", err)
				continue
			}
			if err := conn.WriteText(payload); err != nil {
				return
			}
		}
	}
}
