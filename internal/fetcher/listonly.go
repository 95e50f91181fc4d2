package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	fastshot "github.com/opus-domini/fast-shot"
)

// ListOnly is the adapter variant for upstreams that hand back a flat
// team-index list plus a separate current-tick endpoint, and leave team
// addressing to an operator-provided format string (e.g. "1.2.{x}.1").
type ListOnly struct {
	client   fastshot.ClientHttpMethods
	ipFormat string
}

// listOnlyTeamsWire is the wire shape of the flag-id listing endpoint:
// {teams: [int], flag_ids: {svc: {team_int: [flag_id...]}}}.
type listOnlyTeamsWire struct {
	Teams   []int                                    `json:"teams"`
	FlagIDs map[string]map[string][]json.RawMessage `json:"flag_ids"`
}

type currentTickWire struct {
	CurrentTick int64 `json:"current_tick"`
}

// NewListOnly builds a list-only adapter. ipFormat must contain exactly
// one "{x}" placeholder, substituted with the team's integer index to
// produce its address.
func NewListOnly(baseURL, ipFormat string, perCallTimeout time.Duration) *ListOnly {
	client := fastshot.NewClient(baseURL).
		Config().SetTimeout(perCallTimeout).
		Build()
	return &ListOnly{client: client, ipFormat: ipFormat}
}

func (l *ListOnly) formatIP(teamIndex int) string {
	return strings.ReplaceAll(l.ipFormat, "{x}", strconv.Itoa(teamIndex))
}

// CurrentTick fetches the upstream's notion of the current round, since
// list-only upstreams don't embed target_tick in their flag-id listing
// the way tick-keyed upstreams do.
func (l *ListOnly) CurrentTick(ctx context.Context) (int64, error) {
	resp, err := l.client.GET("/tick").Context().Set(ctx).Send()
	if err != nil {
		return 0, fmt.Errorf("fetch current tick: %w", err)
	}
	if !resp.Status().Is2xx() {
		return 0, fmt.Errorf("current tick endpoint returned status %d", resp.StatusCode())
	}
	var wire currentTickWire
	if err := resp.Body().AsJSON(&wire); err != nil {
		return 0, fmt.Errorf("decode current tick: %w", err)
	}
	return wire.CurrentTick, nil
}

func (l *ListOnly) fetchTeamsWire(ctx context.Context) (listOnlyTeamsWire, error) {
	var wire listOnlyTeamsWire
	resp, err := l.client.GET("/flags").Context().Set(ctx).Send()
	if err != nil {
		return wire, fmt.Errorf("fetch list-only flags: %w", err)
	}
	if !resp.Status().Is2xx() {
		return wire, fmt.Errorf("list-only flags endpoint returned status %d", resp.StatusCode())
	}
	if err := resp.Body().AsJSON(&wire); err != nil {
		return wire, fmt.Errorf("decode list-only flags: %w", err)
	}
	return wire, nil
}

// Services maps the flat team-index listing onto the (service -> team ->
// tick -> flag-ids) contract, stamping every entry with the tick fetched
// from CurrentTick since the upstream doesn't supply one per-entry.
func (l *ListOnly) Services(ctx context.Context) (ServiceMap, error) {
	wire, err := l.fetchTeamsWire(ctx)
	if err != nil {
		return nil, err
	}
	tick, err := l.CurrentTick(ctx)
	if err != nil {
		return nil, err
	}

	out := make(ServiceMap, len(wire.FlagIDs))
	for svc, byTeam := range wire.FlagIDs {
		out[svc] = make(map[string]map[int64][]json.RawMessage, len(byTeam))
		for teamStr, flagIDs := range byTeam {
			teamIndex, err := strconv.Atoi(teamStr)
			if err != nil {
				return nil, fmt.Errorf("parse team index %q for %s: %w", teamStr, svc, err)
			}
			ip := l.formatIP(teamIndex)
			out[svc][ip] = map[int64][]json.RawMessage{tick: flagIDs}
		}
	}
	return out, nil
}

func (l *ListOnly) IPs(ctx context.Context) ([]string, error) {
	wire, err := l.fetchTeamsWire(ctx)
	if err != nil {
		return nil, err
	}
	ips := make([]string, 0, len(wire.Teams))
	for _, idx := range wire.Teams {
		ips = append(ips, l.formatIP(idx))
	}
	return ips, nil
}
