package store

import (
	"context"
	"fmt"

	"github.com/Cyberlandslaget/angrepa/internal/model"
)

// UpsertService inserts name if absent, ignoring conflicts — services are
// created once at startup from configuration and never deleted.
func (s *Store) UpsertService(ctx context.Context, name string) error {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx,
		"INSERT INTO service (name) VALUES ($1) ON CONFLICT (name) DO NOTHING", name)
	if err != nil {
		return fmt.Errorf("upsert service %s: %w", name, err)
	}
	return nil
}

// ListServices returns every configured service.
func (s *Store) ListServices(ctx context.Context) ([]model.Service, error) {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, "SELECT name FROM service ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.Name); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// UpsertTeam inserts ip if absent. Unlike services, a team's name may be
// updated later via UpdateTeamName once the operator identifies it as nop
// or own.
func (s *Store) UpsertTeam(ctx context.Context, ip string) error {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx,
		"INSERT INTO team (ip, name) VALUES ($1, '') ON CONFLICT (ip) DO NOTHING", ip)
	if err != nil {
		return fmt.Errorf("upsert team %s: %w", ip, err)
	}
	return nil
}

// UpdateTeamName sets the operator-facing label ("nop", "own", or a
// custom name) for a team.
func (s *Store) UpdateTeamName(ctx context.Context, ip, name string) error {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, "UPDATE team SET name = $1 WHERE ip = $2", name, ip)
	if err != nil {
		return fmt.Errorf("update team name %s: %w", ip, err)
	}
	return nil
}

// ListTeams returns every known team in natural-lexicographic IP order.
func (s *Store) ListTeams(ctx context.Context) ([]model.Team, error) {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, "SELECT ip, name FROM team")
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var out []model.Team
	for rows.Next() {
		var t model.Team
		if err := rows.Scan(&t.IP, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortTeamsByIP(out)
	return out, nil
}

// TeamByIP fetches a single team by its IP.
func (s *Store) TeamByIP(ctx context.Context, ip string) (model.Team, bool, error) {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	var t model.Team
	err := s.pool.QueryRow(ctx, "SELECT ip, name FROM team WHERE ip = $1", ip).Scan(&t.IP, &t.Name)
	if err != nil {
		if isNoRows(err) {
			return model.Team{}, false, nil
		}
		return model.Team{}, false, fmt.Errorf("fetch team %s: %w", ip, err)
	}
	return t, true, nil
}
