package runner

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/docker/docker/client"

	"github.com/Cyberlandslaget/angrepa/internal/clock"
	"github.com/Cyberlandslaget/angrepa/internal/model"
	"github.com/Cyberlandslaget/angrepa/internal/store"
)

// Runner owns one Pool per enabled exploit and dispatches one cooperative
// task per eligible target on every tick firing.
type Runner struct {
	docker       *client.Client
	store        *store.Store
	clock        clock.Clock
	flagValidity int64
	softTimeout  time.Duration
	flagRegex    *regexp.Regexp

	mu    sync.Mutex
	pools map[int64]*Pool // exploit id -> pool
}

// New builds a Runner. flagValidity is the operator-configured number of
// ticks a flag remains submittable; softTimeout is the per-execution
// abandon-and-record deadline.
func New(docker *client.Client, st *store.Store, c clock.Clock, flagValidity int64, softTimeout time.Duration, flagRegex *regexp.Regexp) *Runner {
	return &Runner{
		docker:       docker,
		store:        st,
		clock:        c,
		flagValidity: flagValidity,
		softTimeout:  softTimeout,
		flagRegex:    flagRegex,
		pools:        make(map[int64]*Pool),
	}
}

// Run consumes tick firings from interval until ctx is cancelled. For
// each firing it lists enabled exploits and, for each, spawns a
// cooperative dispatch of its eligible targets without waiting for them
// to finish before returning control to the clock.
func (r *Runner) Run(ctx context.Context, interval *clock.TickInterval) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-interval.C():
			r.dispatchRound(ctx)
		}
	}
}

func (r *Runner) dispatchRound(ctx context.Context) {
	exploits, err := r.store.ListExploits(ctx)
	if err != nil {
		slog.Warn("runner: failed to list exploits", "error", err)
		return
	}

	oldest := time.Now().Add(-time.Duration((float64(r.flagValidity) - 0.5) * float64(r.clock.Tick())))

	for _, exploit := range exploits {
		if !exploit.Enabled {
			continue
		}
		exploit := exploit

		pool, err := r.poolFor(ctx, exploit)
		if err != nil {
			slog.Warn("runner: failed to get container pool", "exploit", exploit.Name, "error", err)
			continue
		}

		targets, err := r.store.EligibleTargets(ctx, exploit, oldest)
		if err != nil {
			slog.Warn("runner: failed to list eligible targets", "exploit", exploit.Name, "error", err)
			continue
		}

		for _, target := range targets {
			target := target
			go r.runOne(ctx, exploit, pool, target)
		}
	}
}

func (r *Runner) poolFor(ctx context.Context, exploit model.Exploit) (*Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[exploit.ID]; ok {
		return p, nil
	}
	p, err := NewPool(ctx, r.docker, exploit.DockerImage, exploit.PoolSize)
	if err != nil {
		return nil, err
	}
	r.pools[exploit.ID] = p

	if err := r.store.UpdateExploitContainers(ctx, exploit.ID, p.ContainerIDs()); err != nil {
		slog.Warn("runner: failed to persist pool containers", "exploit", exploit.Name, "error", err)
	}

	return p, nil
}

func (r *Runner) runOne(ctx context.Context, exploit model.Exploit, pool *Pool, target model.Target) {
	containerID, release, err := pool.Lease(ctx)
	if err != nil {
		return
	}
	defer release()

	result, err := Run(ctx, r.docker, containerID, target.Team, target.FlagID, r.softTimeout)
	if err != nil {
		slog.Warn("runner: execution failed", "exploit", exploit.Name, "team", target.Team, "error", err)
		return
	}

	executionID, err := r.store.InsertExecution(ctx, model.Execution{
		ExploitID:  exploit.ID,
		TargetID:   target.ID,
		Output:     result.Output,
		ExitCode:   result.ExitCode,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	})
	if err != nil {
		slog.Warn("runner: failed to persist execution", "exploit", exploit.Name, "team", target.Team, "error", err)
		return
	}

	flagTexts := ExtractFlags(r.flagRegex, result.Output)
	if len(flagTexts) == 0 {
		return
	}
	flags := make([]model.Flag, 0, len(flagTexts))
	for _, text := range flagTexts {
		flags = append(flags, model.Flag{
			Text:        text,
			ExecutionID: executionID,
			ExploitID:   exploit.ID,
		})
	}
	if err := r.store.InsertFlags(ctx, flags); err != nil {
		slog.Warn("runner: failed to persist flags", "exploit", exploit.Name, "team", target.Team, "error", err)
	}
}

// Close releases every pool the runner has created and clears their
// container ids from the exploit rows.
func (r *Runner) Close(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.pools {
		p.Close(ctx)
		if err := r.store.UpdateExploitContainers(ctx, id, nil); err != nil {
			slog.Warn("runner: failed to clear pool containers", "exploit_id", id, "error", err)
		}
	}
}
