package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Cyberlandslaget/angrepa/internal/model"
)

// InsertTarget inserts one target row. Callers are responsible for any
// per-process seen-set dedup — this method always inserts.
func (s *Store) InsertTarget(ctx context.Context, t model.Target) (int64, error) {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO target (flag_id, service, team, target_tick)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		t.FlagID, t.Service, t.Team, t.TargetTick,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert target: %w", err)
	}
	return id, nil
}

// MostRecentTarget returns the newest target row for a given team and
// service, or ok=false if none exists.
func (s *Store) MostRecentTarget(ctx context.Context, service, team string) (model.Target, bool, error) {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	var t model.Target
	err := s.pool.QueryRow(ctx, `
		SELECT id, flag_id, service, team, created_at, target_tick
		FROM target
		WHERE service = $1 AND team = $2
		ORDER BY created_at DESC
		LIMIT 1`,
		service, team,
	).Scan(&t.ID, &t.FlagID, &t.Service, &t.Team, &t.CreatedAt, &t.TargetTick)
	if err != nil {
		if isNoRows(err) {
			return model.Target{}, false, nil
		}
		return model.Target{}, false, fmt.Errorf("most recent target for %s/%s: %w", service, team, err)
	}
	return t, true, nil
}

// EligibleTargets returns, for an exploit E targeting service S, the set
// of targets T such that
//
//  1. T.service = S,
//  2. T.created_at >= oldest,
//  3. no Execution exists with exploit_id = E.id, target_id = T.id, and
//     finished_at >= oldest,
//  4. T.team is not in E.blacklist.
//
// Results are ordered by (created_at ASC, team natural-lexicographic
// ASC) and returned exactly in that order — there is no further
// reordering after the sort.
func (s *Store) EligibleTargets(ctx context.Context, exploit model.Exploit, oldest time.Time) ([]model.Target, error) {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.flag_id, t.service, t.team, t.created_at, t.target_tick
		FROM target t
		WHERE t.service = $1
		  AND t.created_at >= $2
		  AND NOT EXISTS (
		      SELECT 1 FROM execution e
		      WHERE e.exploit_id = $3 AND e.target_id = t.id AND e.finished_at >= $2
		  )
		  AND t.team <> ALL(COALESCE($4::text[], '{}'))
		ORDER BY t.created_at ASC`,
		exploit.Service, oldest, exploit.ID, exploit.Blacklist,
	)
	if err != nil {
		return nil, fmt.Errorf("eligible targets for exploit %d: %w", exploit.ID, err)
	}
	defer rows.Close()

	var out []model.Target
	for rows.Next() {
		var t model.Target
		if err := rows.Scan(&t.ID, &t.FlagID, &t.Service, &t.Team, &t.CreatedAt, &t.TargetTick); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The database sorts by created_at; team natural-lexicographic order
	// is a secondary key applied in Go because Postgres has no built-in
	// dotted-quad comparator. This is the final ordering — it is not
	// re-sorted again downstream.
	stableSortByTeamWithinTimestamp(out)
	return out, nil
}

// stableSortByTeamWithinTimestamp groups consecutive equal-CreatedAt runs
// and orders each run by natural team IP, preserving the created_at ASC
// ordering the query already guarantees.
func stableSortByTeamWithinTimestamp(targets []model.Target) {
	start := 0
	for i := 1; i <= len(targets); i++ {
		if i == len(targets) || !targets[i].CreatedAt.Equal(targets[start].CreatedAt) {
			sortTargetRunByTeam(targets[start:i])
			start = i
		}
	}
}

func sortTargetRunByTeam(run []model.Target) {
	for i := 1; i < len(run); i++ {
		for j := i; j > 0 && naturalIPLess(run[j].Team, run[j-1].Team); j-- {
			run[j], run[j-1] = run[j-1], run[j]
		}
	}
}
