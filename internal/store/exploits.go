package store

import (
	"context"
	"fmt"

	"github.com/Cyberlandslaget/angrepa/internal/model"
)

// ListExploits returns every configured exploit.
func (s *Store) ListExploits(ctx context.Context) ([]model.Exploit, error) {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, service, enabled, blacklist, pool_size, docker_image, docker_containers
		FROM exploit ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list exploits: %w", err)
	}
	defer rows.Close()

	var out []model.Exploit
	for rows.Next() {
		var e model.Exploit
		if err := rows.Scan(&e.ID, &e.Name, &e.Service, &e.Enabled, &e.Blacklist,
			&e.PoolSize, &e.DockerImage, &e.DockerContainers); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExploitByID fetches a single exploit.
func (s *Store) ExploitByID(ctx context.Context, id int64) (model.Exploit, bool, error) {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	var e model.Exploit
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, service, enabled, blacklist, pool_size, docker_image, docker_containers
		FROM exploit WHERE id = $1`, id,
	).Scan(&e.ID, &e.Name, &e.Service, &e.Enabled, &e.Blacklist,
		&e.PoolSize, &e.DockerImage, &e.DockerContainers)
	if err != nil {
		if isNoRows(err) {
			return model.Exploit{}, false, nil
		}
		return model.Exploit{}, false, fmt.Errorf("fetch exploit %d: %w", id, err)
	}
	return e, true, nil
}

// InsertExploit inserts a new exploit and returns its assigned id.
func (s *Store) InsertExploit(ctx context.Context, e model.Exploit) (int64, error) {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO exploit (name, service, enabled, blacklist, pool_size, docker_image, docker_containers)
		VALUES ($1, $2, $3, COALESCE($4::text[], '{}'), $5, $6, COALESCE($7::text[], '{}'))
		RETURNING id`,
		e.Name, e.Service, e.Enabled, e.Blacklist, e.PoolSize, e.DockerImage, e.DockerContainers,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert exploit %s: %w", e.Name, err)
	}
	return id, nil
}

// UpdateExploitEnabled toggles whether the runner attempts this exploit
// each tick.
func (s *Store) UpdateExploitEnabled(ctx context.Context, id int64, enabled bool) error {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, "UPDATE exploit SET enabled = $1 WHERE id = $2", enabled, id)
	if err != nil {
		return fmt.Errorf("update exploit %d enabled: %w", id, err)
	}
	return nil
}

// UpdateExploitContainers replaces the exploit's live container-pool
// identifier list, called whenever the pool is (re)built.
func (s *Store) UpdateExploitContainers(ctx context.Context, id int64, containers []string) error {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx,
		"UPDATE exploit SET docker_containers = COALESCE($1::text[], '{}'), pool_size = $2 WHERE id = $3",
		containers, len(containers), id)
	if err != nil {
		return fmt.Errorf("update exploit %d containers: %w", id, err)
	}
	return nil
}

// UpdateExploitConfig updates the operator-editable fields of an exploit.
func (s *Store) UpdateExploitConfig(ctx context.Context, id int64, name string, blacklist []string, poolSize int) error {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx,
		"UPDATE exploit SET name = $1, blacklist = $2, pool_size = $3 WHERE id = $4",
		name, blacklist, poolSize, id)
	if err != nil {
		return fmt.Errorf("update exploit %d config: %w", id, err)
	}
	return nil
}
