package engine

import (
	"context"
	"errors"
	"fmt"
)

// State is a stream pass state.
type State string

const (
	StateStart          State = "START"
	StateIterateScopes  State = "ITERATE_SCOPES"
	StateIterateFlat    State = "ITERATE_FLAT"
	StateCrawlHierarchy State = "CRAWL_HIERARCHY"
	StateCommit         State = "COMMIT"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

// ErrStopped is recorded when the consumer of a pass stops ranging before
// the pass completes. The watermark is not committed.
var ErrStopped = errors.New("pass stopped by consumer")

// PassError is a fatal error that ended a stream pass.
//
// The committed watermark is unchanged whenever a PassError is returned.
type PassError struct {
	// Stream is the stream being replicated.
	Stream string

	// RunID identifies the pass in the runs table.
	RunID string

	// State is the state the pass was in when it failed.
	State State

	Err error
}

// Error implements the error interface.
func (e *PassError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("stream %s failed in %s (run=%s): %v", e.Stream, e.State, e.RunID, e.Err)
	}
	return fmt.Sprintf("stream %s failed in %s: %v", e.Stream, e.State, e.Err)
}

func (e *PassError) Unwrap() error {
	return e.Err
}

// RefreshError reports a failed credential refresh. It is always fatal
// for the current pass.
type RefreshError struct {
	// Reason is why the refresh was attempted ("pass start", "call budget", ...).
	Reason string

	Err error
}

// Error implements the error interface.
func (e *RefreshError) Error() string {
	return fmt.Sprintf("credential refresh (%s): %v", e.Reason, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// IsRefreshError returns true if err is a RefreshError.
// Uses errors.As to handle wrapped errors.
func IsRefreshError(err error) bool {
	var re *RefreshError
	return errors.As(err, &re)
}

// IsPassError returns true if err is a PassError.
func IsPassError(err error) bool {
	var pe *PassError
	return errors.As(err, &pe)
}

// isFatal decides whether a failure inside the crawler must abort the
// pass rather than skip the node.
func isFatal(ctx context.Context, err error) bool {
	if IsRefreshError(err) || errors.Is(err, ErrStopped) {
		return true
	}
	return ctx.Err() != nil
}
