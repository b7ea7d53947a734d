package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/asanatap/internal/store"
)

// AssertionContext provides the resources state assertions query.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", ev.Seq, ev.Kind, ev.Detail)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(r *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(r, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(r *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertEmitted:
		return assertEmitted(r, a)
	case AssertEmittedCount:
		return assertEmittedCount(r, a)
	case AssertWatermark:
		return assertWatermark(r, a, actx)
	case AssertRunStatus:
		return assertRunStatus(r, a, actx)
	case AssertRefreshes:
		if r.Refreshes != a.Count {
			return &AssertionError{
				Type:     AssertRefreshes,
				Expected: fmt.Sprintf("%d refreshes", a.Count),
				Actual:   fmt.Sprintf("%d refreshes", r.Refreshes),
				Trace:    r.Trace,
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// emitted returns the ids emitted for stream, in order. run 0 covers all
// runs.
func emitted(r *Result, stream string, run int) []string {
	var events []TraceEvent
	if run == 0 {
		events = r.Trace
	} else if runs := r.runs(); run <= len(runs) {
		events = runs[run-1]
	}

	ids := []string{}
	for _, ev := range events {
		if ev.Kind != EventEmit {
			continue
		}
		if s, id, _ := strings.Cut(ev.Detail, " "); s == stream {
			ids = append(ids, id)
		}
	}
	return ids
}

// assertEmitted checks the exact emission order of a stream.
func assertEmitted(r *Result, a Assertion) error {
	actual := emitted(r, a.Stream, a.Run)
	expected := a.IDs
	if expected == nil {
		expected = []string{}
	}
	if slices.Equal(actual, expected) {
		return nil
	}

	scope := "all runs"
	if a.Run > 0 {
		scope = fmt.Sprintf("run %d", a.Run)
	}
	return &AssertionError{
		Type:     AssertEmitted,
		Expected: fmt.Sprintf("%s records %v in %s", a.Stream, expected, scope),
		Actual:   fmt.Sprintf("%v", actual),
		Trace:    r.Trace,
	}
}

func assertEmittedCount(r *Result, a Assertion) error {
	count := 0
	for _, id := range emitted(r, a.Stream, 0) {
		if id == a.ID {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertEmittedCount,
		Expected: fmt.Sprintf("%s %s emitted %d times", a.Stream, a.ID, a.Count),
		Actual:   fmt.Sprintf("emitted %d times", count),
		Trace:    r.Trace,
	}
}

// assertWatermark reads the committed watermark from the store, not the
// trace, so it also catches a STATE message without a matching commit.
func assertWatermark(r *Result, a Assertion, actx *AssertionContext) error {
	value, ok, err := actx.Store.Watermark(actx.Ctx, a.Stream)
	if err != nil {
		return err
	}

	actual := "none"
	if ok {
		actual = value.Format(time.RFC3339Nano)
	}
	expected := "none"
	if a.Value != "" {
		want, err := time.Parse(time.RFC3339, a.Value)
		if err != nil {
			return err
		}
		expected = want.UTC().Format(time.RFC3339Nano)
	}

	if actual == expected {
		return nil
	}
	return &AssertionError{
		Type:     AssertWatermark,
		Expected: fmt.Sprintf("%s watermark %s", a.Stream, expected),
		Actual:   actual,
		Trace:    r.Trace,
	}
}

// assertRunStatus checks the recorded status of the last pass of a
// stream. A stream that never started a run has status "none".
func assertRunStatus(r *Result, a Assertion, actx *AssertionContext) error {
	status := "none"
	runID := ""
	for _, p := range r.Passes {
		if p.Stream == a.Stream {
			runID = p.RunID
		}
	}

	if runID != "" {
		runs, err := actx.Store.Runs(actx.Ctx, 0)
		if err != nil {
			return err
		}
		for _, run := range runs {
			if run.ID == runID {
				status = string(run.Status)
			}
		}
	}

	if status == a.Status {
		return nil
	}
	return &AssertionError{
		Type:     AssertRunStatus,
		Expected: fmt.Sprintf("%s last run %s", a.Stream, a.Status),
		Actual:   status,
		Trace:    r.Trace,
	}
}
