package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Cyberlandslaget/angrepa/internal/clock"
)

func TestPing(t *testing.T) {
	mux := http.NewServeMux()
	Register(mux, clock.New(time.Now(), time.Minute), "test-version")

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["version"] != "test-version" {
		t.Fatalf("expected version echoed back, got %+v", body)
	}
}

func TestInternalTick(t *testing.T) {
	start := time.Now().Add(-90 * time.Second)
	mux := http.NewServeMux()
	Register(mux, clock.New(start, time.Minute), "")

	req := httptest.NewRequest(http.MethodGet, "/info/internal_tick", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	tick, ok := body["tick"].(float64)
	if !ok || tick < 0 {
		t.Fatalf("expected a non-negative tick, got %+v", body)
	}
}
