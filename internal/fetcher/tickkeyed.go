package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	fastshot "github.com/opus-domini/fast-shot"
)

// tickKeyedWire is the wire shape of the tick-keyed variant's state
// endpoint: {availableTeams: [ip], services: {svc: {ip: {tick: [flag_id...]}}}}.
type tickKeyedWire struct {
	AvailableTeams []string                                          `json:"availableTeams"`
	Services       map[string]map[string]map[string][]json.RawMessage `json:"services"`
}

// TickKeyed is the adapter variant for upstreams that already partition
// flag-ids by round, so target_tick is directly available per
// (service, team).
type TickKeyed struct {
	client  fastshot.ClientHttpMethods
	timeout time.Duration
}

// NewTickKeyed builds a tick-keyed adapter against baseURL. Each call is
// bounded by perCallTimeout; the fetch routine layers its own 5s
// per-attempt deadline on top via the context it passes in.
func NewTickKeyed(baseURL string, perCallTimeout time.Duration) *TickKeyed {
	client := fastshot.NewClient(baseURL).
		Config().SetTimeout(perCallTimeout).
		Build()
	return &TickKeyed{client: client, timeout: perCallTimeout}
}

func (t *TickKeyed) Services(ctx context.Context) (ServiceMap, error) {
	resp, err := t.client.GET("/state").Context().Set(ctx).Send()
	if err != nil {
		return nil, fmt.Errorf("fetch tick-keyed state: %w", err)
	}
	if !resp.Status().Is2xx() {
		return nil, fmt.Errorf("tick-keyed state returned status %d", resp.StatusCode())
	}

	var wire tickKeyedWire
	if err := resp.Body().AsJSON(&wire); err != nil {
		return nil, fmt.Errorf("decode tick-keyed state: %w", err)
	}

	out := make(ServiceMap, len(wire.Services))
	for svc, byTeam := range wire.Services {
		out[svc] = make(map[string]map[int64][]json.RawMessage, len(byTeam))
		for team, byTick := range byTeam {
			ticks := make(map[int64][]json.RawMessage, len(byTick))
			for tickStr, flagIDs := range byTick {
				var tick int64
				if _, err := fmt.Sscanf(tickStr, "%d", &tick); err != nil {
					return nil, fmt.Errorf("parse tick key %q for %s/%s: %w", tickStr, svc, team, err)
				}
				ticks[tick] = flagIDs
			}
			out[svc][team] = ticks
		}
	}
	return out, nil
}

func (t *TickKeyed) IPs(ctx context.Context) ([]string, error) {
	resp, err := t.client.GET("/state").Context().Set(ctx).Send()
	if err != nil {
		return nil, fmt.Errorf("fetch tick-keyed state for ips: %w", err)
	}
	if !resp.Status().Is2xx() {
		return nil, fmt.Errorf("tick-keyed state returned status %d", resp.StatusCode())
	}

	var wire tickKeyedWire
	if err := resp.Body().AsJSON(&wire); err != nil {
		return nil, fmt.Errorf("decode tick-keyed state: %w", err)
	}
	return wire.AvailableTeams, nil
}
