// Package api exposes the control-plane HTTP surface: a liveness ping
// and the current tick index. The notification bus's WebSocket endpoint
// is served separately by internal/ws.Server on its own bind address.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Cyberlandslaget/angrepa/internal/clock"
)

const defaultMetaVersion = "dev"

// Handler owns the dependencies every route needs.
type Handler struct {
	clock   clock.Clock
	version string
}

// Register wires every route onto mux.
func Register(mux *http.ServeMux, c clock.Clock, version string) {
	h := &Handler{clock: c, version: version}
	registerRoutes(h, mux)
}

func registerRoutes(h *Handler, mux *http.ServeMux) {
	h.registerRoutes(mux, []routeBinding{
		{"GET /ping", h.ping},
		{"GET /info/internal_tick", h.internalTick},
	})
}

func (h *Handler) ping(w http.ResponseWriter, _ *http.Request) {
	version := h.version
	if version == "" {
		version = defaultMetaVersion
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"version": version,
	})
}

func (h *Handler) internalTick(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tick": h.clock.CurrentTick(time.Now()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(payload); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
