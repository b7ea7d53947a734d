package source

import (
	"context"
	"errors"
	"fmt"
)

// Kind categorizes a fetch failure.
type Kind int

const (
	// KindTransient covers rate limiting, server errors and network faults.
	KindTransient Kind = iota + 1
	// KindAuthExpired means the credential was rejected.
	KindAuthExpired
	// KindNotFound means the addressed record does not exist.
	KindNotFound
	// KindFatal means retrying cannot help.
	KindFatal
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindAuthExpired:
		return "auth_expired"
	case KindNotFound:
		return "not_found"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified fetch failure.
type Error struct {
	Kind Kind

	// Op describes the call, e.g. "GET tasks/12/subtasks".
	Op string

	// Status is the HTTP status code, 0 if the request never completed.
	Status int

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error.
func NewError(kind Kind, op string, status int, err error) *Error {
	return &Error{Kind: kind, Op: op, Status: status, Err: err}
}

// KindOf classifies err. Context cancellation is fatal; unclassified
// errors are transient.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindFatal
	}
	return KindTransient
}

// IsAuthExpired returns true if err is a credential rejection.
// Uses errors.As to handle wrapped errors.
func IsAuthExpired(err error) bool {
	return KindOf(err) == KindAuthExpired
}

// IsNotFound returns true if err reports a missing record.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsTransient returns true if err is worth skipping past rather than
// aborting on.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}
