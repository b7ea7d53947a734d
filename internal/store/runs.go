package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RunStatus is the outcome of a stream pass.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCommitted RunStatus = "committed"
	RunFailed    RunStatus = "failed"
)

// RunStats are the per-pass counters.
type RunStats struct {
	Observed    int64
	Emitted     int64
	Skipped     int64
	Duplicates  int64
	FailedNodes int64
}

// Run is one pass over one stream.
type Run struct {
	ID         string
	Stream     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     RunStatus
	Stats      RunStats

	// Watermark is the session high-water mark at the end of the pass.
	Watermark time.Time

	Error string
}

// BeginRun records the start of a pass.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, stream, started_at, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Stream,
		formatTime(run.StartedAt),
		string(RunRunning),
	)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", run.ID, err)
	}
	return nil
}

// CommitRun atomically advances the stream watermark to run.Watermark and
// marks the run committed.
func (s *Store) CommitRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit run %s: begin tx: %w", run.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := commitWatermark(ctx, tx, run.Stream, run.Watermark, run.ID, s.now()); err != nil {
		return err
	}

	run.Status = RunCommitted
	if err := finishRun(ctx, tx, run, s.now()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

// FailRun marks a run failed. The watermark is not touched.
func (s *Store) FailRun(ctx context.Context, run Run) error {
	run.Status = RunFailed
	return finishRun(ctx, s.db, run, s.now())
}

func finishRun(ctx context.Context, db execer, run Run, now time.Time) error {
	finished := run.FinishedAt
	if finished.IsZero() {
		finished = now
	}
	var mark string
	if !run.Watermark.IsZero() {
		mark = formatTime(run.Watermark)
	}
	_, err := db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at  = ?,
			status       = ?,
			observed     = ?,
			emitted      = ?,
			skipped      = ?,
			duplicates   = ?,
			failed_nodes = ?,
			watermark    = ?,
			error        = ?
		WHERE id = ?
	`,
		formatTime(finished),
		string(run.Status),
		run.Stats.Observed,
		run.Stats.Emitted,
		run.Stats.Skipped,
		run.Stats.Duplicates,
		run.Stats.FailedNodes,
		mark,
		run.Error,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stream, started_at, finished_at, status,
		       observed, emitted, skipped, duplicates, failed_nodes, watermark, error
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		run       Run
		started   string
		finished  sql.NullString
		status    string
		watermark string
	)
	err := rows.Scan(
		&run.ID, &run.Stream, &started, &finished, &status,
		&run.Stats.Observed, &run.Stats.Emitted, &run.Stats.Skipped,
		&run.Stats.Duplicates, &run.Stats.FailedNodes, &watermark, &run.Error,
	)
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = RunStatus(status)
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, fmt.Errorf("parse started_at for %s: %w", run.ID, err)
	}
	if finished.Valid && finished.String != "" {
		if run.FinishedAt, err = parseTime(finished.String); err != nil {
			return Run{}, fmt.Errorf("parse finished_at for %s: %w", run.ID, err)
		}
	}
	if watermark != "" {
		if run.Watermark, err = parseTime(watermark); err != nil {
			return Run{}, fmt.Errorf("parse watermark for %s: %w", run.ID, err)
		}
	}
	return run, nil
}
