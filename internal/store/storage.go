package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	StorageResourceTargets    = "targets"
	StorageResourceExecutions = "executions"
	StorageResourceFlags      = "flags"
	StorageResourceAll        = "all"

	storageResourceTargetsLabel    = "Target rows"
	storageResourceExecutionsLabel = "Execution rows"
	storageResourceFlagsLabel      = "Flag rows"
)

var ErrInvalidStorageResource = errors.New("invalid storage resource")

// StorageResourceStat reports the row count and on-disk footprint of one
// table, backing the maintenance job named in SPEC_FULL.md.
type StorageResourceStat struct {
	Resource    string `json:"resource"`
	Label       string `json:"label"`
	Rows        int64  `json:"rows"`
	ApproxBytes int64  `json:"approxBytes"`
}

// StorageStats is a point-in-time snapshot across the CTF schema's
// largest-growing tables.
type StorageStats struct {
	Resources   []StorageResourceStat `json:"resources"`
	CollectedAt time.Time             `json:"collectedAt"`
}

// StorageFlushResult reports how many rows a prune removed from one
// resource.
type StorageFlushResult struct {
	Resource    string `json:"resource"`
	RemovedRows int64  `json:"removedRows"`
}

func NormalizeStorageResource(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func IsStorageResource(raw string) bool {
	switch NormalizeStorageResource(raw) {
	case StorageResourceTargets, StorageResourceExecutions, StorageResourceFlags, StorageResourceAll:
		return true
	default:
		return false
	}
}

// GetStorageStats reports row counts and approximate on-disk size per
// table, using pg_total_relation_size.
func (s *Store) GetStorageStats(ctx context.Context) (StorageStats, error) {
	stats := StorageStats{
		Resources:   make([]StorageResourceStat, 0, 3),
		CollectedAt: time.Now().UTC(),
	}

	for _, r := range []struct {
		resource, table, label string
	}{
		{StorageResourceTargets, "target", storageResourceTargetsLabel},
		{StorageResourceExecutions, "execution", storageResourceExecutionsLabel},
		{StorageResourceFlags, "flag", storageResourceFlagsLabel},
	} {
		item, err := s.resourceStorageStats(ctx, r.resource, r.table, r.label)
		if err != nil {
			return StorageStats{}, err
		}
		stats.Resources = append(stats.Resources, item)
	}

	return stats, nil
}

func (s *Store) resourceStorageStats(ctx context.Context, resource, table, label string) (StorageResourceStat, error) {
	var rows, bytes int64
	query := fmt.Sprintf(`SELECT (SELECT COUNT(*) FROM %s), pg_total_relation_size('%s')`, table, table)
	if err := s.pool.QueryRow(ctx, query).Scan(&rows, &bytes); err != nil {
		return StorageResourceStat{}, fmt.Errorf("stats for %s: %w", table, err)
	}
	return StorageResourceStat{Resource: resource, Label: label, Rows: rows, ApproxBytes: bytes}, nil
}

// FlushStorageResource prunes rows older than keepSince from the given
// resource, or all prunable resources when resource is "all". Flags are
// pruned before executions and targets to satisfy foreign keys.
func (s *Store) FlushStorageResource(ctx context.Context, resource string, keepSince time.Time) ([]StorageFlushResult, error) {
	resource = NormalizeStorageResource(resource)
	if resource == StorageResourceAll {
		results := make([]StorageFlushResult, 0, 3)
		for _, key := range []string{StorageResourceFlags, StorageResourceExecutions, StorageResourceTargets} {
			item, err := s.flushStorageResourceSingle(ctx, key, keepSince)
			if err != nil {
				return nil, err
			}
			results = append(results, item)
		}
		return results, nil
	}

	item, err := s.flushStorageResourceSingle(ctx, resource, keepSince)
	if err != nil {
		return nil, err
	}
	return []StorageFlushResult{item}, nil
}

func (s *Store) flushStorageResourceSingle(ctx context.Context, resource string, keepSince time.Time) (StorageFlushResult, error) {
	switch resource {
	case StorageResourceTargets:
		removed, err := s.execRows(ctx, "DELETE FROM target WHERE created_at < $1", keepSince)
		return StorageFlushResult{Resource: resource, RemovedRows: removed}, err
	case StorageResourceExecutions:
		removed, err := s.execRows(ctx, "DELETE FROM execution WHERE finished_at < $1", keepSince)
		return StorageFlushResult{Resource: resource, RemovedRows: removed}, err
	case StorageResourceFlags:
		removed, err := s.execRows(ctx, `DELETE FROM flag WHERE "timestamp" < $1 AND submitted = true`, keepSince)
		return StorageFlushResult{Resource: resource, RemovedRows: removed}, err
	default:
		return StorageFlushResult{}, ErrInvalidStorageResource
	}
}

func (s *Store) execRows(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
