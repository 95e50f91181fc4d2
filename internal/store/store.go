// Package store is the data-access layer: a pgx connection pool plus
// typed query operations grouped into Teams/Services, Targets, Exploits,
// and Executions/Flags.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a shared Postgres connection pool. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Config controls pool sizing: a shared connection pool with a
// configured maximum on the order of fifty connections and a
// per-acquisition wait bound of ten seconds before failing the caller.
type Config struct {
	DSN            string
	MaxConns       int32
	AcquireTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = 50
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 10 * time.Second
	}
	return c
}

// New opens a pool against cfg.DSN and applies embedded migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Pool exposes the underlying pool for callers that need a raw
// connection, such as the notification bus's dedicated LISTEN connection.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases all pooled connections.
func (s *Store) Close() { s.pool.Close() }

// acquireTimeout bounds each store operation (pool acquisition and query
// together) to a fixed ten-second wait; Config.AcquireTimeout is not
// consulted here.
func acquireTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 10*time.Second)
}
