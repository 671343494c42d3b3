// Package runlog persists run and item outcomes so past runs can be
// inspected with `regalsync runs`.
package runlog

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/regalsync/db"
	"github.com/teranos/regalsync/errors"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
	StatusCancelled = "cancelled"
)

// Run is one row of the runs table
type Run struct {
	ID         string     `json:"id"`
	Mode       string     `json:"mode"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Error      string     `json:"error,omitempty"`
}

// Item is the outcome of one candidate within a run
type Item struct {
	Position int    `json:"position"`
	PID      string `json:"pid"`
	Action   string `json:"action"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
}

// Store reads and writes the run log tables
type Store struct {
	db *sql.DB
}

// NewStore creates a run log over a migrated database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// StartRun inserts a run in running state
func (s *Store) StartRun(ctx context.Context, run Run) error {
	query := `
		INSERT INTO runs (id, mode, started_at, status, total)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Mode,
		run.StartedAt.UTC().Format(time.RFC3339),
		StatusRunning,
		run.Total,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to start run %s", run.ID)
	}
	return nil
}

// RecordItem stores the outcome of one candidate. Recording the same
// position twice keeps the later outcome.
func (s *Store) RecordItem(ctx context.Context, runID string, item Item) error {
	query := `
		INSERT INTO run_items (run_id, position, pid, action, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, position) DO UPDATE SET
			action = excluded.action,
			outcome = excluded.outcome,
			error = excluded.error
	`
	_, err := s.db.ExecContext(ctx, query,
		runID,
		item.Position,
		item.PID,
		item.Action,
		item.Outcome,
		item.Error,
	)
	if db.IsDatabaseClosed(err) {
		return errors.Mark(errors.Wrapf(err, "failed to record item %d of run %s", item.Position, runID), db.ErrDatabaseClosed)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to record item %d of run %s", item.Position, runID)
	}
	return nil
}

// FinishRun stores the final counters and status of a run
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	query := `
		UPDATE runs
		SET finished_at = ?, status = ?, total = ?, succeeded = ?, failed = ?, skipped = ?, error = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		finished.UTC().Format(time.RFC3339),
		run.Status,
		run.Total,
		run.Succeeded,
		run.Failed,
		run.Skipped,
		run.Error,
		run.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to finish run %s", run.ID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError("run %s", run.ID)
	}
	return nil
}

const runColumns = `id, mode, started_at, finished_at, status, total, succeeded, failed, skipped, error`

// GetRun returns one run by id
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("run %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get run %s", id)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		runs = append(runs, *run)
	}
	return runs, errors.Wrap(rows.Err(), "failed to iterate runs")
}

// Items returns the item outcomes of a run in candidate order
func (s *Store) Items(ctx context.Context, runID string) ([]Item, error) {
	query := `
		SELECT position, pid, action, outcome, error
		FROM run_items
		WHERE run_id = ?
		ORDER BY position
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list items of run %s", runID)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Position, &it.PID, &it.Action, &it.Outcome, &it.Error); err != nil {
			return nil, errors.Wrap(err, "failed to scan item")
		}
		items = append(items, it)
	}
	return items, errors.Wrap(rows.Err(), "failed to iterate items")
}

// History returns every recorded outcome of pid across runs, newest first
func (s *Store) History(ctx context.Context, pid string) ([]Item, error) {
	query := `
		SELECT i.position, i.pid, i.action, i.outcome, i.error
		FROM run_items i
		JOIN runs r ON r.id = i.run_id
		WHERE i.pid = ?
		ORDER BY r.started_at DESC, i.recorded_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, pid)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read history of %s", pid)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Position, &it.PID, &it.Action, &it.Outcome, &it.Error); err != nil {
			return nil, errors.Wrap(err, "failed to scan item")
		}
		items = append(items, it)
	}
	return items, errors.Wrap(rows.Err(), "failed to iterate history")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var run Run
	var startedAt string
	var finishedAt sql.NullString
	err := sc.Scan(
		&run.ID,
		&run.Mode,
		&startedAt,
		&finishedAt,
		&run.Status,
		&run.Total,
		&run.Succeeded,
		&run.Failed,
		&run.Skipped,
		&run.Error,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse started_at of run %s", run.ID)
	}
	if finishedAt.Valid && finishedAt.String != "" {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse finished_at of run %s", run.ID)
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

// parseTime accepts RFC3339 and the layout the sqlite driver returns for
// DATETIME columns.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}
