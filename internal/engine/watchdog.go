package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/asanatap/internal/source"
)

// Default watchdog budgets.
const (
	DefaultMaxCalls = 5
	DefaultMaxAge   = 30 * time.Minute
)

// Refresher replaces the process credential. Refresh must tolerate
// redundant calls.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Watchdog keeps the credential from expiring mid-pass.
//
// Two independent triggers force a refresh before the next API call:
//   - call budget: maxCalls calls have been made since the last refresh
//   - age budget: more than maxAge has elapsed since the last refresh
//
// Accounting is per call, never per recursion level, so a deep crawl is
// covered exactly like a long flat listing.
//
// A Watchdog is owned by one pass at a time and is not safe for
// concurrent use.
type Watchdog struct {
	refresher Refresher
	clock     Clock
	logger    *slog.Logger

	maxCalls int
	maxAge   time.Duration

	calls     int       // calls since the last refresh
	since     time.Time // time of the last refresh
	total     int       // calls over the watchdog's lifetime
	refreshes int
}

// WatchdogOption configures a Watchdog.
type WatchdogOption func(*Watchdog)

// WithMaxCalls sets the call budget. Values below 1 are ignored.
func WithMaxCalls(n int) WatchdogOption {
	return func(w *Watchdog) {
		if n >= 1 {
			w.maxCalls = n
		}
	}
}

// WithMaxAge sets the wall-clock budget. Non-positive values are ignored.
func WithMaxAge(d time.Duration) WatchdogOption {
	return func(w *Watchdog) {
		if d > 0 {
			w.maxAge = d
		}
	}
}

// WithWatchdogLogger sets the logger.
func WithWatchdogLogger(l *slog.Logger) WatchdogOption {
	return func(w *Watchdog) {
		w.logger = l
	}
}

// NewWatchdog creates a watchdog. The age budget starts counting now.
func NewWatchdog(r Refresher, clock Clock, opts ...WatchdogOption) *Watchdog {
	if clock == nil {
		clock = RealClock{}
	}
	w := &Watchdog{
		refresher: r,
		clock:     clock,
		logger:    slog.Default(),
		maxCalls:  DefaultMaxCalls,
		maxAge:    DefaultMaxAge,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.since = clock.Now()
	return w
}

// Start forces a refresh at the start of a stream pass.
func (w *Watchdog) Start(ctx context.Context) error {
	return w.Refresh(ctx, "pass start")
}

// Refresh replaces the credential unconditionally and resets both budgets.
func (w *Watchdog) Refresh(ctx context.Context, reason string) error {
	w.logger.Info("refreshing credential", "reason", reason, "calls", w.calls)
	if err := w.refresher.Refresh(ctx); err != nil {
		return &RefreshError{Reason: reason, Err: err}
	}
	w.refreshes++
	w.calls = 0
	w.since = w.clock.Now()
	return nil
}

// Check refreshes if either budget is spent. It makes no API call of its
// own and may be called as often as wanted.
func (w *Watchdog) Check(ctx context.Context) error {
	if w.calls >= w.maxCalls {
		return w.Refresh(ctx, "call budget")
	}
	if w.clock.Now().Sub(w.since) > w.maxAge {
		return w.Refresh(ctx, "age budget")
	}
	return nil
}

// Call runs one API call under the watchdog.
//
// The budgets are checked before the call. If the call reports an expired
// credential, the watchdog refreshes and retries exactly once; the second
// outcome is returned as is.
func (w *Watchdog) Call(ctx context.Context, op func(context.Context) error) error {
	if err := w.Check(ctx); err != nil {
		return err
	}
	w.count()
	err := op(ctx)
	if !source.IsAuthExpired(err) {
		return err
	}

	w.logger.Warn("credential rejected, retrying once", "error", err)
	if rerr := w.Refresh(ctx, "auth expired"); rerr != nil {
		return rerr
	}
	w.count()
	return op(ctx)
}

func (w *Watchdog) count() {
	w.calls++
	w.total++
}

// Calls returns the number of calls since the last refresh.
func (w *Watchdog) Calls() int {
	return w.calls
}

// TotalCalls returns the number of calls over the watchdog's lifetime.
func (w *Watchdog) TotalCalls() int {
	return w.total
}

// Refreshes returns how many successful refreshes the watchdog has made.
func (w *Watchdog) Refreshes() int {
	return w.refreshes
}
