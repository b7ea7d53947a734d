// Package asana implements source.Source against the Asana REST API.
//
// Collections are paginated with limit/offset; the continuation token is
// taken from the "next_page" object of each response. Every request
// carries an explicit opt_fields projection when the caller supplies one.
//
// The client performs no retries of its own. HTTP failures are mapped to
// the source error taxonomy so the engine can decide between refreshing
// the credential, skipping a node or aborting a pass:
//
//	401       → KindAuthExpired
//	404       → KindNotFound
//	429, 5xx  → KindTransient
//	other 4xx → KindFatal
//
// Network errors are transient unless the context was cancelled.
package asana
