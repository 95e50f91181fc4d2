package fetcher

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Cyberlandslaget/angrepa/internal/clock"
	"github.com/Cyberlandslaget/angrepa/internal/model"
	"github.com/Cyberlandslaget/angrepa/internal/store"
)

// Routine drives one adapter against the tick clock, applying the
// rename map, the flag-id service-set check, and the per-process
// seen-set dedup.
type Routine struct {
	adapter               Adapter
	store                 *store.Store
	clock                 clock.Clock
	rename                map[string]string
	flagIDServices        map[string]struct{}
	servicesWithoutFlagID []string

	seen map[string]struct{}
}

// NewRoutine builds a Routine. flagIDServices is the operator-configured
// `services` set (those expected to carry flag-ids); servicesWithoutFlagID
// is the complementary `services_without_flagid` set.
func NewRoutine(adapter Adapter, st *store.Store, c clock.Clock, rename map[string]string, flagIDServices, servicesWithoutFlagID []string) *Routine {
	set := make(map[string]struct{}, len(flagIDServices))
	for _, s := range flagIDServices {
		set[s] = struct{}{}
	}
	return &Routine{
		adapter:               adapter,
		store:                 st,
		clock:                 c,
		rename:                rename,
		flagIDServices:        set,
		servicesWithoutFlagID: servicesWithoutFlagID,
		seen:                  make(map[string]struct{}),
	}
}

// Run consumes ticks from interval until ctx is cancelled, performing one
// fetch round per firing.
func (r *Routine) Run(ctx context.Context, interval *clock.TickInterval) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-interval.C():
			r.runOnce(ctx, tick)
		}
	}
}

func (r *Routine) runOnce(ctx context.Context, tick int64) {
	overall := r.clock.Tick() / 2
	roundCtx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	services, err := r.fetchServicesWithRetry(roundCtx)
	if err != nil {
		slog.Warn("fetcher round skipped: services() deadline exceeded", "tick", tick, "error", err)
		return
	}

	services = r.applyRename(services)

	if !r.serviceSetMatches(services) {
		slog.Warn("fetcher round skipped: service set mismatch", "tick", tick,
			"missing", r.missingServices(services), "extra", r.extraServices(services))
		return
	}

	if len(r.servicesWithoutFlagID) > 0 {
		ips, err := r.adapter.IPs(roundCtx)
		if err != nil {
			slog.Warn("fetcher: ips() failed, skipping services_without_flagid insertion", "tick", tick, "error", err)
		} else {
			r.insertFlaglessTargets(ctx, tick, ips)
		}
	}

	r.insertFlagIDTargets(ctx, services)
}

// fetchServicesWithRetry implements step 2: a five-second per-attempt
// deadline, one second between attempts, bounded by the caller's overall
// deadline.
func (r *Routine) fetchServicesWithRetry(ctx context.Context) (ServiceMap, error) {
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		services, err := r.adapter.Services(attemptCtx)
		cancel()
		if err == nil {
			return services, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *Routine) applyRename(services ServiceMap) ServiceMap {
	if len(r.rename) == 0 {
		return services
	}
	out := make(ServiceMap, len(services))
	for svc, byTeam := range services {
		name := svc
		if renamed, ok := r.rename[svc]; ok {
			name = renamed
		}
		out[name] = byTeam
	}
	return out
}

func (r *Routine) serviceSetMatches(services ServiceMap) bool {
	return len(r.missingServices(services)) == 0 && len(r.extraServices(services)) == 0
}

func (r *Routine) missingServices(services ServiceMap) []string {
	var missing []string
	for svc := range r.flagIDServices {
		if _, ok := services[svc]; !ok {
			missing = append(missing, svc)
		}
	}
	sort.Strings(missing)
	return missing
}

func (r *Routine) extraServices(services ServiceMap) []string {
	var extra []string
	for svc := range services {
		if _, ok := r.flagIDServices[svc]; !ok {
			extra = append(extra, svc)
		}
	}
	sort.Strings(extra)
	return extra
}

func (r *Routine) insertFlaglessTargets(ctx context.Context, tick int64, ips []string) {
	sortedIPs := append([]string(nil), ips...)
	store.SortIPsNatural(sortedIPs)

	for _, ip := range sortedIPs {
		if err := r.store.UpsertTeam(ctx, ip); err != nil {
			slog.Warn("upsert team failed", "team", ip, "error", err)
		}
	}

	for _, svc := range r.servicesWithoutFlagID {
		for _, ip := range sortedIPs {
			if _, err := r.store.InsertTarget(ctx, model.Target{
				Service:    svc,
				Team:       ip,
				TargetTick: tick,
			}); err != nil {
				slog.Warn("insert flagless target failed", "service", svc, "team", ip, "error", err)
			}
		}
	}
}

func (r *Routine) insertFlagIDTargets(ctx context.Context, services ServiceMap) {
	for svc, byTeam := range services {
		teams := make([]string, 0, len(byTeam))
		for team := range byTeam {
			teams = append(teams, team)
		}
		store.SortIPsNatural(teams)

		for _, team := range teams {
			if err := r.store.UpsertTeam(ctx, team); err != nil {
				slog.Warn("upsert team failed", "team", team, "error", err)
			}
		}

		for _, team := range teams {
			byTick := byTeam[team]
			ticks := make([]int64, 0, len(byTick))
			for t := range byTick {
				ticks = append(ticks, t)
			}
			sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })

			for _, t := range ticks {
				for _, raw := range byTick[t] {
					canon, err := CanonicalFlagID(raw)
					if err != nil {
						slog.Warn("skipping malformed flag-id", "service", svc, "team", team, "tick", t, "error", err)
						continue
					}
					key := svc + "\x00" + team + "\x00" + canon
					if _, ok := r.seen[key]; ok {
						continue
					}
					r.seen[key] = struct{}{}

					if _, err := r.store.InsertTarget(ctx, model.Target{
						FlagID:     canon,
						Service:    svc,
						Team:       team,
						TargetTick: t,
					}); err != nil {
						slog.Warn("insert target failed", "service", svc, "team", team, "tick", t, "error", err)
					}
				}
			}
		}
	}
}
