// Package store provides SQLite-backed durable storage for replication
// progress.
//
// The store holds two tables:
//   - watermarks: the committed replication-key boundary per stream
//   - runs: one row per stream pass (run id, counters, outcome)
//
// # Invariants
//
// Committed watermarks never regress. Commit upserts with
// ON CONFLICT DO UPDATE ... WHERE new >= old, comparing (value_sec,
// value_nsec) pairs, so a late or replayed commit with an older value
// leaves the row untouched. Any time.Time year round-trips exactly.
//
// A watermark commit and the owning run's "committed" status are written
// in the same transaction. A run that never reaches Commit stays
// "running" (process killed) or becomes "failed" via FinishRun; in both
// cases the watermark is unchanged and the next pass re-reads the same
// window.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads (state show) during a sync
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
