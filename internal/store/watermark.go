package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Watermark is the committed progress of one stream.
type Watermark struct {
	Stream      string
	Value       time.Time
	RunID       string
	CommittedAt time.Time
}

// Watermark returns the committed value for a stream.
// ok is false if the stream has never been committed.
func (s *Store) Watermark(ctx context.Context, stream string) (value time.Time, ok bool, err error) {
	var sec, nsec int64
	err = s.db.QueryRowContext(ctx, `
		SELECT value_sec, value_nsec FROM watermarks WHERE stream = ?
	`, stream).Scan(&sec, &nsec)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark %s: %w", stream, err)
	}
	return time.Unix(sec, nsec).UTC(), true, nil
}

// Commit persists value as the stream's watermark unless the stored value
// is already newer. Returns whether the row changed.
func (s *Store) Commit(ctx context.Context, stream string, value time.Time, runID string) (bool, error) {
	res, err := commitWatermark(ctx, s.db, stream, value, runID, s.now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("commit watermark %s: %w", stream, err)
	}
	return n > 0, nil
}

// Watermarks lists all committed watermarks ordered by stream name.
//
// Returns an empty slice (not nil) if nothing has been committed.
func (s *Store) Watermarks(ctx context.Context) ([]Watermark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stream, value_sec, value_nsec, run_id, committed_at
		FROM watermarks
		ORDER BY stream COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query watermarks: %w", err)
	}
	defer rows.Close()

	marks := []Watermark{}
	for rows.Next() {
		var (
			w           Watermark
			sec, nsec   int64
			committedAt string
		)
		if err := rows.Scan(&w.Stream, &sec, &nsec, &w.RunID, &committedAt); err != nil {
			return nil, fmt.Errorf("scan watermark: %w", err)
		}
		w.Value = time.Unix(sec, nsec).UTC()
		if w.CommittedAt, err = parseTime(committedAt); err != nil {
			return nil, fmt.Errorf("parse committed_at for %s: %w", w.Stream, err)
		}
		marks = append(marks, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watermarks: %w", err)
	}
	return marks, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// commitWatermark upserts a watermark. The WHERE clause on the conflict
// branch keeps the stored value from ever moving backwards.
//
// The value is kept as Unix seconds plus nanoseconds rather than a single
// nanosecond count, which only covers the years 1678 to 2262.
func commitWatermark(ctx context.Context, db execer, stream string, value time.Time, runID string, now time.Time) (sql.Result, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO watermarks (stream, value_sec, value_nsec, value, run_id, committed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(stream) DO UPDATE SET
			value_sec    = excluded.value_sec,
			value_nsec   = excluded.value_nsec,
			value        = excluded.value,
			run_id       = excluded.run_id,
			committed_at = excluded.committed_at
		WHERE excluded.value_sec > watermarks.value_sec
		   OR (excluded.value_sec = watermarks.value_sec AND excluded.value_nsec >= watermarks.value_nsec)
	`,
		stream,
		value.Unix(),
		value.Nanosecond(),
		formatTime(value),
		runID,
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("commit watermark %s: %w", stream, err)
	}
	return res, nil
}
