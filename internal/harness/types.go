package harness

import (
	"github.com/roach88/asanatap/internal/engine"
)

// Trace event kinds.
const (
	EventRun     = "run"     // a sync run starts
	EventRefresh = "refresh" // credential refresh attempt
	EventCall    = "call"    // API call, with its failure kind if any
	EventEmit    = "emit"    // record handed to the emitter
	EventCommit  = "commit"  // STATE after a persisted watermark
	EventPass    = "pass"    // a stream pass ended
)

// TraceEvent is one observable step of a scenario.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is false if any run, invariant or assertion failed.
	Pass bool `json:"pass"`

	// Trace contains every event in order. Used for assertions and golden
	// comparison.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Passes holds the result of every stream pass, across runs.
	Passes []engine.PassResult `json:"-"`

	// Refreshes counts successful credential refreshes.
	Refreshes int `json:"refreshes"`

	// Output is the Singer message stream written across all runs.
	Output []byte `json:"-"`

	seq int64
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(kind, detail string) {
	r.seq++
	r.Trace = append(r.Trace, TraceEvent{Seq: r.seq, Kind: kind, Detail: detail})
}

// runs splits the trace at run events. runs()[0] is the first run.
func (r *Result) runs() [][]TraceEvent {
	var out [][]TraceEvent
	for _, ev := range r.Trace {
		if ev.Kind == EventRun {
			out = append(out, nil)
			continue
		}
		if len(out) == 0 {
			continue
		}
		out[len(out)-1] = append(out[len(out)-1], ev)
	}
	return out
}
