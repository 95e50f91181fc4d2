package submitter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Cyberlandslaget/angrepa/internal/model"
	"github.com/Cyberlandslaget/angrepa/internal/store"
)

const sweepInterval = 3 * time.Second

// Handler drives the periodic sweep of unsubmitted flags: read, dedup,
// preemptively mark, chunk, submit concurrently, write back status.
type Handler struct {
	store   *store.Store
	adapter Adapter

	mu        sync.Mutex
	handedOff map[string]struct{}
}

// NewHandler builds a Handler bound to adapter.
func NewHandler(st *store.Store, adapter Adapter) *Handler {
	return &Handler{
		store:     st,
		adapter:   adapter,
		handedOff: make(map[string]struct{}),
	}
}

// Run fires every sweepInterval until ctx is cancelled. A firing is
// skipped outright if the previous sweep is still running, rather than
// queuing — skip-on-miss.
func (h *Handler) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	busy := make(chan struct{}, 1)
	busy <- struct{}{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case <-busy:
			default:
				continue
			}
			go func() {
				defer func() { busy <- struct{}{} }()
				h.sweepOnce(ctx)
			}()
		}
	}
}

func (h *Handler) sweepOnce(ctx context.Context) {
	unsubmitted, err := h.store.ListUnsubmittedFlags(ctx)
	if err != nil {
		slog.Warn("submission handler: failed to list unsubmitted flags", "error", err)
		return
	}
	if len(unsubmitted) == 0 {
		return
	}

	fresh := h.filterHandedOff(unsubmitted)
	if len(fresh) == 0 {
		return
	}

	if err := h.store.MarkFlagsSubmitted(ctx, fresh); err != nil {
		slog.Warn("submission handler: failed to mark flags submitted", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, batch := range chunk(fresh) {
		batch := batch
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.submitChunk(ctx, batch)
		}()
	}
	wg.Wait()
}

// filterHandedOff drops any flag already present in the process-local
// "already handed off" set, then records the survivors in that set.
func (h *Handler) filterHandedOff(flags []model.Flag) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	fresh := make([]string, 0, len(flags))
	for _, f := range flags {
		if _, ok := h.handedOff[f.Text]; ok {
			continue
		}
		h.handedOff[f.Text] = struct{}{}
		fresh = append(fresh, f.Text)
	}
	return fresh
}

func (h *Handler) submitChunk(ctx context.Context, flags []string) {
	results, err := h.adapter.Submit(ctx, flags)
	if err != nil {
		slog.Warn("submission handler: adapter failed, flags remain submitted with no status update",
			"count", len(flags), "error", err)
		return
	}
	for _, r := range results {
		if err := h.store.UpdateFlagStatus(ctx, r.Text, r.Status); err != nil {
			slog.Warn("submission handler: failed to write back status", "flag", r.Text, "status", r.Status, "error", err)
		}
	}
}
