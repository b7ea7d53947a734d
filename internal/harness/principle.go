package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/asanatap/internal/engine"
)

// Principle is a replication guarantee that must hold for every scenario,
// whatever its assertions say. Principles are checked against the trace
// only, so they also hold for the Singer stream the trace mirrors.
type Principle struct {
	Name        string
	Description string
	check       func(r *Result, maxCalls int) []string
}

// Principles lists the guarantees checked after every scenario.
var Principles = []Principle{
	{
		Name:        "emit-once",
		Description: "a hierarchical record is emitted at most once per run",
		check:       checkEmitOnce,
	},
	{
		Name:        "commit-after-records",
		Description: "a stream commits after its last record and only when its pass succeeded",
		check:       checkCommitAfterRecords,
	},
	{
		Name:        "call-budget",
		Description: "no more than max_calls API calls happen between refreshes",
		check:       checkCallBudget,
	},
	{
		Name:        "monotonic-commit",
		Description: "committed watermarks never move backwards",
		check:       checkMonotonicCommit,
	},
}

// CheckPrinciples runs every principle against a result and returns the
// violations, each prefixed with the principle name.
func CheckPrinciples(r *Result, maxCalls int) []string {
	var violations []string
	for _, p := range Principles {
		for _, msg := range p.check(r, maxCalls) {
			violations = append(violations, p.Name+": "+msg)
		}
	}
	return violations
}

func checkEmitOnce(r *Result, _ int) []string {
	var out []string
	for i, events := range r.runs() {
		seen := make(map[string]bool)
		for _, ev := range events {
			if ev.Kind != EventEmit {
				continue
			}
			stream, _, _ := strings.Cut(ev.Detail, " ")
			if s, ok := engine.Lookup(stream); !ok || !s.Hierarchical {
				continue
			}
			if seen[ev.Detail] {
				out = append(out, fmt.Sprintf("run %d: %s emitted twice (seq %d)", i+1, ev.Detail, ev.Seq))
			}
			seen[ev.Detail] = true
		}
	}
	return out
}

func checkCommitAfterRecords(r *Result, _ int) []string {
	var out []string
	for i, events := range r.runs() {
		committed := make(map[string]bool)
		for _, ev := range events {
			stream, rest, _ := strings.Cut(ev.Detail, " ")
			switch ev.Kind {
			case EventEmit:
				if committed[stream] {
					out = append(out, fmt.Sprintf("run %d: %s record emitted after commit (seq %d)", i+1, stream, ev.Seq))
				}
			case EventCommit:
				committed[stream] = true
			case EventPass:
				failed := strings.HasPrefix(rest, string(engine.StateFailed)+" ")
				if failed && committed[stream] {
					out = append(out, fmt.Sprintf("run %d: failed %s pass committed", i+1, stream))
				}
				if !failed && !committed[stream] {
					out = append(out, fmt.Sprintf("run %d: %s pass finished without commit", i+1, stream))
				}
			}
		}
	}
	return out
}

func checkCallBudget(r *Result, maxCalls int) []string {
	var out []string
	calls := 0
	for _, ev := range r.Trace {
		switch {
		case ev.Kind == EventRefresh && ev.Detail != "failed":
			calls = 0
		case ev.Kind == EventCall:
			calls++
			if calls > maxCalls {
				out = append(out, fmt.Sprintf("call %d since last refresh (seq %d), budget is %d", calls, ev.Seq, maxCalls))
			}
		}
	}
	return out
}

func checkMonotonicCommit(r *Result, _ int) []string {
	var out []string
	last := make(map[string]time.Time)
	for _, ev := range r.Trace {
		if ev.Kind != EventCommit {
			continue
		}
		stream, value, _ := strings.Cut(ev.Detail, " ")
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			out = append(out, fmt.Sprintf("unparseable commit %q (seq %d)", ev.Detail, ev.Seq))
			continue
		}
		if prev, ok := last[stream]; ok && t.Before(prev) {
			out = append(out, fmt.Sprintf("%s moved back from %s to %s (seq %d)",
				stream, prev.Format(time.RFC3339Nano), value, ev.Seq))
		}
		last[stream] = t
	}
	return out
}
