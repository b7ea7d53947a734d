// Package engine implements incremental replication of the Asana
// workspace → project → task → subtask hierarchy.
//
// ARCHITECTURE:
//
// One [Pass] replicates one stream. A pass walks a small state machine:
//
//	START → ITERATE_SCOPES → (ITERATE_FLAT | CRAWL_HIERARCHY) → COMMIT → DONE
//	                      any state ─── fatal error ──→ FAILED
//
// START forces a credential refresh, reads the committed watermark and
// seeds the session high-water mark from it. ITERATE_SCOPES re-enumerates
// workspaces (and, for tasks, the non-archived projects inside them) on
// every pass. Flat streams emit each scoped record once. The task stream
// emits a project's direct tasks and then hands them to the [Crawler],
// which walks subtasks of unbounded depth with an explicit stack.
//
// Records are produced lazily through an iter.Seq2; nothing is
// materialized beyond one page and one crawl frontier.
//
// INVARIANTS:
//
// Watermark: the committed watermark is read once at START and written at
// most once, at COMMIT, and only when the pass reaches COMMIT. A consumer
// that stops ranging early, a cancelled context, or any fatal error
// leaves it untouched.
//
// Exclusive boundary: a record is emitted iff its replication key is
// strictly greater than the committed watermark ([ShouldEmit]).
//
// Observation: every observed record advances the session mark
// ([Advance]) whether or not it is emitted.
//
// Dedup: within one pass of a hierarchical stream a record id is marked
// visited before the emit decision, so it is yielded at most once.
//
// Credential budget: every API call goes through the [Watchdog], which
// refreshes the credential after a fixed number of calls or a fixed wall
// time, independent of crawl depth.
//
// Execution is single-threaded. A Watchdog, its credential and a Visited
// set belong to exactly one pass at a time.
package engine
