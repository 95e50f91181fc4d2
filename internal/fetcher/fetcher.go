// Package fetcher implements the tick-keyed and list-only game-server
// adapters plus the routine that drives them against the tick clock.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
)

// ServiceMap is service_name -> team_ip -> target_tick -> flag-id values.
type ServiceMap map[string]map[string]map[int64][]json.RawMessage

// Adapter is the small capability contract both fetcher variants
// implement, selected by name from configuration.
type Adapter interface {
	// Services returns the current (service -> team -> tick -> flag-ids)
	// mapping.
	Services(ctx context.Context) (ServiceMap, error)
	// IPs returns the authoritative list of competitor addresses.
	IPs(ctx context.Context) ([]string, error)
}

// CanonicalFlagID serializes an opaque flag-id value to the canonical
// string form used for the per-process seen-set.
func CanonicalFlagID(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("decode flag-id: %w", err)
	}
	canon, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize flag-id: %w", err)
	}
	return string(canon), nil
}
