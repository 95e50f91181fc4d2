// Package notify bridges Postgres LISTEN/NOTIFY to the in-process event
// hub: a dedicated connection listens on db_notifications, fetches the
// referenced row's joined projection, and republishes it for WebSocket
// fan-out.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Cyberlandslaget/angrepa/internal/events"
	"github.com/Cyberlandslaget/angrepa/internal/store"
)

const channel = "db_notifications"

// payload is the {table, id} envelope database triggers publish.
type payload struct {
	Table string `json:"table"`
	ID    int64  `json:"id"`
}

// Bridge owns the dedicated LISTEN connection and republishes row
// changes to a Hub.
type Bridge struct {
	pool  *pgxpool.Pool
	store *store.Store
	hub   *events.Hub
}

// New returns a Bridge ready to Run.
func New(pool *pgxpool.Pool, st *store.Store, hub *events.Hub) *Bridge {
	return &Bridge{pool: pool, store: st, hub: hub}
}

// Run holds a dedicated connection open for the lifetime of ctx, issuing
// LISTEN once and then looping on incoming notifications. On a connection
// error it logs a warning and retries after a short backoff — a
// transient I/O failure, not a fatal condition.
func (b *Bridge) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := b.listenOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("notification bus connection lost, reconnecting", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
	}
}

func (b *Bridge) listenOnce(ctx context.Context) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}
	slog.Info("notification bus listening", "channel", channel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		b.handle(ctx, n.Payload)
	}
}

func (b *Bridge) handle(ctx context.Context, raw string) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		slog.Warn("malformed notification payload", "error", err, "payload", raw)
		return
	}

	data, err := b.fetchProjection(ctx, p.Table, p.ID)
	if err != nil {
		slog.Warn("failed to fetch joined projection for notification",
			"table", p.Table, "id", p.ID, "error", err)
		return
	}
	if data == nil {
		// Row no longer exists by the time we fetched it; nothing to
		// broadcast.
		return
	}

	b.hub.Publish(events.Event{Table: p.Table, Data: data})
}

func (b *Bridge) fetchProjection(ctx context.Context, table string, id int64) (any, error) {
	switch table {
	case "exploit":
		e, ok, err := b.store.ExploitByID(ctx, id)
		if err != nil || !ok {
			return nil, err
		}
		return e, nil
	case "flag":
		f, ok, err := b.store.FlagByID(ctx, id)
		if err != nil || !ok {
			return nil, err
		}
		return f, nil
	case "execution":
		list, err := b.store.ListExecutionsByIDs(ctx, []int64{id})
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, nil
		}
		return list[0], nil
	default:
		slog.Warn("notification for unknown table", "table", table)
		return nil, nil
	}
}
