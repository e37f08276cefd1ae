package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const runColumns = `id, experiment, seed, variant, repetition, grid_index, params, output_path, status, started_at, completed_at, error`

// CreateRun records a run in the running state.
func (s *SQLiteStore) CreateRun(ctx context.Context, spec RunSpec) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	params, err := json.Marshal(nonNilParams(spec.Params))
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}

	run := &Run{
		RunSpec:   spec,
		ID:        generateID(),
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	s.logger.Debug("creating run",
		slog.String("id", run.ID),
		slog.String("experiment", spec.Experiment),
		slog.Int64("seed", spec.Seed),
		slog.String("variant", spec.Variant))

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, experiment, seed, variant, repetition, grid_index, params, output_path, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, spec.Experiment, spec.Seed, spec.Variant, spec.Repetition, spec.GridIndex,
		string(params), spec.OutputPath, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// CompleteRun marks a run finished with status and an optional error message.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var errValue sql.NullString
	if errMsg != "" {
		errValue = sql.NullString{String: errMsg, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), time.Now().UTC(), errValue, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT ` + runColumns + ` FROM runs`)
	if filter.Experiment != "" {
		query.WriteString(` WHERE experiment = ?`)
		args = append(args, filter.Experiment)
	}
	query.WriteString(` ORDER BY started_at DESC, id`)
	if filter.Limit > 0 {
		query.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run         Run
		status      string
		params      string
		completedAt sql.NullTime
		errMsg      sql.NullString
	)
	err := sc.Scan(
		&run.ID, &run.Experiment, &run.Seed, &run.Variant, &run.Repetition, &run.GridIndex,
		&params, &run.OutputPath, &status, &run.StartedAt, &completedAt, &errMsg,
	)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	if params != "" {
		if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
			return nil, fmt.Errorf("failed to decode params of run %s: %w", run.ID, err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return &run, nil
}

func nonNilParams(p map[string]string) map[string]string {
	if p == nil {
		return map[string]string{}
	}
	return p
}
