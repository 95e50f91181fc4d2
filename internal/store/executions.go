package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Cyberlandslaget/angrepa/internal/model"
)

// InsertExecution persists one completed execution and returns its id.
func (s *Store) InsertExecution(ctx context.Context, e model.Execution) (int64, error) {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO execution (exploit_id, target_id, output, exit_code, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		e.ExploitID, e.TargetID, e.Output, e.ExitCode, e.StartedAt, e.FinishedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert execution: %w", err)
	}
	return id, nil
}

// ListExecutionsSince returns executions with finished_at >= since, joined
// with their target for a wide view.
func (s *Store) ListExecutionsSince(ctx context.Context, since time.Time) ([]model.ExecutionJoined, error) {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.exploit_id, e.target_id, e.output, e.exit_code, e.started_at, e.finished_at,
		       t.service, t.team, t.target_tick
		FROM execution e
		JOIN target t ON t.id = e.target_id
		WHERE e.finished_at >= $1
		ORDER BY e.finished_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("list executions since %s: %w", since, err)
	}
	defer rows.Close()

	var out []model.ExecutionJoined
	for rows.Next() {
		var ej model.ExecutionJoined
		if err := rows.Scan(&ej.ID, &ej.ExploitID, &ej.TargetID, &ej.Output, &ej.ExitCode,
			&ej.StartedAt, &ej.FinishedAt, &ej.Service, &ej.Team, &ej.TargetTick); err != nil {
			return nil, err
		}
		out = append(out, ej)
	}
	return out, rows.Err()
}

// ListExecutionsByIDs returns executions by id, joined with their target.
func (s *Store) ListExecutionsByIDs(ctx context.Context, ids []int64) ([]model.ExecutionJoined, error) {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.exploit_id, e.target_id, e.output, e.exit_code, e.started_at, e.finished_at,
		       t.service, t.team, t.target_tick
		FROM execution e
		JOIN target t ON t.id = e.target_id
		WHERE e.id = ANY($1::bigint[])
		ORDER BY e.id ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("list executions by ids: %w", err)
	}
	defer rows.Close()

	var out []model.ExecutionJoined
	for rows.Next() {
		var ej model.ExecutionJoined
		if err := rows.Scan(&ej.ID, &ej.ExploitID, &ej.TargetID, &ej.Output, &ej.ExitCode,
			&ej.StartedAt, &ej.FinishedAt, &ej.Service, &ej.Team, &ej.TargetTick); err != nil {
			return nil, err
		}
		out = append(out, ej)
	}
	return out, rows.Err()
}

// InsertFlags persists zero-or-more flags harvested from one execution.
// Duplicate text within the batch has already been removed by the
// caller; a text that collides with a flag from a different execution
// (globally unique) is skipped rather than erroring, since that is an
// expected consequence of re-attacking a target whose flag hasn't
// rotated yet.
func (s *Store) InsertFlags(ctx context.Context, flags []model.Flag) error {
	if len(flags) == 0 {
		return nil
	}
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, f := range flags {
		batch.Queue(`
			INSERT INTO flag (text, status, submitted, execution_id, exploit_id)
			VALUES ($1, '', false, $2, $3)
			ON CONFLICT (text) DO NOTHING`,
			f.Text, f.ExecutionID, f.ExploitID)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range flags {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert flag batch: %w", err)
		}
	}
	return nil
}

// ListUnsubmittedFlags returns every flag with submitted = false.
func (s *Store) ListUnsubmittedFlags(ctx context.Context) ([]model.Flag, error) {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT id, text, status, submitted, "timestamp", execution_id, exploit_id
		FROM flag WHERE submitted = false`)
	if err != nil {
		return nil, fmt.Errorf("list unsubmitted flags: %w", err)
	}
	defer rows.Close()

	var out []model.Flag
	for rows.Next() {
		var f model.Flag
		if err := rows.Scan(&f.ID, &f.Text, &f.Status, &f.Submitted, &f.Timestamp, &f.ExecutionID, &f.ExploitID); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// MarkFlagsSubmitted sets submitted = true for the given flag texts,
// preemptively, before the network call to the submitter. This can never
// be undone.
func (s *Store) MarkFlagsSubmitted(ctx context.Context, texts []string) error {
	if len(texts) == 0 {
		return nil
	}
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx,
		"UPDATE flag SET submitted = true WHERE text = ANY($1::text[])", texts)
	if err != nil {
		return fmt.Errorf("mark flags submitted: %w", err)
	}
	return nil
}

// UpdateFlagStatus sets the status column for one flag, identified by its
// literal text, to the result the submitter returned.
func (s *Store) UpdateFlagStatus(ctx context.Context, text, status string) error {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, "UPDATE flag SET status = $1 WHERE text = $2", status, text)
	if err != nil {
		return fmt.Errorf("update flag status: %w", err)
	}
	return nil
}

// FlagByID fetches a single flag by id, joined with its execution's
// target, for the notification bus's joined-projection fetch.
func (s *Store) FlagByID(ctx context.Context, id int64) (model.FlagJoined, bool, error) {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	var fj model.FlagJoined
	err := s.pool.QueryRow(ctx, `
		SELECT f.id, f.text, f.status, f.submitted, f."timestamp", f.execution_id, f.exploit_id,
		       t.service, t.team, t.target_tick
		FROM flag f
		JOIN execution e ON e.id = f.execution_id
		JOIN target t ON t.id = e.target_id
		WHERE f.id = $1`, id,
	).Scan(&fj.ID, &fj.Text, &fj.Status, &fj.Submitted, &fj.Timestamp, &fj.ExecutionID, &fj.ExploitID,
		&fj.Service, &fj.Team, &fj.TargetTick)
	if err != nil {
		if isNoRows(err) {
			return model.FlagJoined{}, false, nil
		}
		return model.FlagJoined{}, false, fmt.Errorf("fetch flag %d: %w", id, err)
	}
	return fj, true, nil
}

// ListFlagsSince returns flags created at or after since, joined with
// their execution's target for a wide view.
func (s *Store) ListFlagsSince(ctx context.Context, since time.Time) ([]model.FlagJoined, error) {
	ctx, cancel := acquireTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT f.id, f.text, f.status, f.submitted, f."timestamp", f.execution_id, f.exploit_id,
		       t.service, t.team, t.target_tick
		FROM flag f
		JOIN execution e ON e.id = f.execution_id
		JOIN target t ON t.id = e.target_id
		WHERE f."timestamp" >= $1
		ORDER BY f."timestamp" ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("list flags since %s: %w", since, err)
	}
	defer rows.Close()

	var out []model.FlagJoined
	for rows.Next() {
		var fj model.FlagJoined
		if err := rows.Scan(&fj.ID, &fj.Text, &fj.Status, &fj.Submitted, &fj.Timestamp, &fj.ExecutionID, &fj.ExploitID,
			&fj.Service, &fj.Team, &fj.TargetTick); err != nil {
			return nil, err
		}
		out = append(out, fj)
	}
	return out, rows.Err()
}
