// Package source defines the boundary between the replication engine and
// the remote API it reads from.
//
// The engine never speaks HTTP. It asks a [Source] for one page of a
// collection at a time ([Source.List]) or for a single record by id
// ([Source.Get]). Every request names the exact fields it needs; the
// Source must not widen the projection.
//
// # Error Taxonomy
//
// Failures are reported as [*Error] values carrying a [Kind]:
//
//   - KindAuthExpired: the credential was rejected. The engine refreshes
//     and retries the same call exactly once.
//   - KindNotFound: the addressed record no longer exists.
//   - KindTransient: rate limiting, 5xx, network trouble.
//   - KindFatal: anything that retrying cannot fix (bad request, decode
//     failure, cancelled context).
//
// Use [KindOf] to classify an arbitrary error; unknown errors are
// treated as transient.
package source
