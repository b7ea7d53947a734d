package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/asanatap/internal/engine"
	"github.com/roach88/asanatap/internal/output"
	"github.com/roach88/asanatap/internal/source"
	"github.com/roach88/asanatap/internal/store"
	"github.com/roach88/asanatap/internal/testutil"
)

// scenarioEpoch is the fixed wall clock every scenario runs at.
var scenarioEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness runs the real driver against an in-memory Asana and records
// every observable step.
type Harness struct {
	driver  *engine.Driver
	emitter *traceEmitter
	result  *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh database in a temporary directory
// with a frozen clock and sequential run ids ("run-1", "run-2", ...), so
// the trace is identical across executions.
//
// A run whose outcome differs from the step's expectation, a violated
// replication principle, or a failed assertion is reported in
// Result.Errors, not as the returned error. The error is reserved for
// problems setting the scenario up.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "asanatap-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewFakeClock(scenarioEpoch)
	st.SetNow(clock.Now)
	ctx := context.Background()

	for stream, value := range scenario.Watermarks {
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, fmt.Errorf("watermark %s: %w", stream, err)
		}
		if _, err := st.Commit(ctx, stream, t, "seed"); err != nil {
			return nil, fmt.Errorf("failed to seed watermark: %w", err)
		}
	}

	startDate, err := time.Parse(time.RFC3339, scenario.StartDate)
	if err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}

	result := NewResult()
	src, err := scenario.Tree.source()
	if err != nil {
		return nil, err
	}
	src.PageSize = scenario.PageSize
	for _, f := range scenario.Failures {
		src.FailOn(f.Op, failureKinds[f.Kind], f.Times)
	}

	maxCalls := scenario.MaxCalls
	if maxCalls == 0 {
		maxCalls = engine.DefaultMaxCalls
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cred := &traceCredential{result: result, failAfter: scenario.RefreshFailsAfter}
	wd := engine.NewWatchdog(cred, clock,
		engine.WithMaxCalls(maxCalls),
		engine.WithWatchdogLogger(logger),
	)

	var out bytes.Buffer
	h := &Harness{
		driver: engine.NewDriver(&traceSource{src: src, result: result}, st, wd, startDate,
			engine.WithClock(clock),
			engine.WithRunIDs(testutil.NewRunIDs("")),
			engine.WithLogger(logger),
		),
		emitter: &traceEmitter{
			result: result,
			out:    output.NewWriter(&out, output.WithNow(clock.Now)),
		},
		result: result,
	}

	for i, step := range scenario.Runs {
		h.runStep(ctx, i+1, step)
	}
	result.Output = out.Bytes()

	for _, msg := range CheckPrinciples(result, maxCalls) {
		result.AddError(msg)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// runStep syncs the step's streams one at a time so each pass result
// lands in the trace right after its own events.
func (h *Harness) runStep(ctx context.Context, n int, step RunStep) {
	streams := engine.Catalog()
	if len(step.Streams) > 0 {
		streams = streams[:0]
		for _, name := range step.Streams {
			s, _ := engine.Lookup(name)
			streams = append(streams, s)
		}
	}
	names := make([]string, len(streams))
	for i, s := range streams {
		names[i] = s.Name
	}

	h.result.add(EventRun, fmt.Sprintf("%d %s", n, strings.Join(names, ",")))

	var runErr error
	for _, s := range streams {
		results, err := h.driver.Sync(ctx, []engine.Stream{s}, h.emitter)
		for _, r := range results {
			h.result.Passes = append(h.result.Passes, r)
			h.result.add(EventPass, passDetail(r))
		}
		if err != nil {
			runErr = err
			break
		}
	}

	switch {
	case step.ExpectError == "" && runErr != nil:
		h.result.AddError(fmt.Sprintf("run %d: unexpected error: %v", n, runErr))
	case step.ExpectError != "" && runErr == nil:
		h.result.AddError(fmt.Sprintf("run %d: expected error containing %q, got success", n, step.ExpectError))
	case runErr != nil && !strings.Contains(runErr.Error(), step.ExpectError):
		h.result.AddError(fmt.Sprintf("run %d: expected error containing %q, got %v", n, step.ExpectError, runErr))
	}
}

func passDetail(r engine.PassResult) string {
	runID := r.RunID
	if runID == "" {
		runID = "-"
	}
	detail := fmt.Sprintf("%s %s %s observed=%d emitted=%d skipped=%d duplicates=%d failed_nodes=%d",
		r.Stream, r.State, runID,
		r.Stats.Observed, r.Stats.Emitted, r.Stats.Skipped, r.Stats.Duplicates, r.Stats.FailedNodes,
	)
	var perr *engine.PassError
	if errors.As(r.Err, &perr) {
		detail += " failed_in=" + string(perr.State)
	}
	return detail
}

// source builds the fake Asana for the tree.
func (t Tree) source() (*testutil.FakeSource, error) {
	src := testutil.NewFakeSource()
	for _, id := range t.Workspaces {
		src.Workspaces = append(src.Workspaces, testutil.Workspace(id))
	}
	for _, c := range []struct {
		into map[string][]source.Record
		from map[string][]map[string]any
	}{
		{src.Projects, t.Projects},
		{src.Tags, t.Tags},
		{src.Tasks, t.Tasks},
		{src.Subtasks, t.Subtasks},
	} {
		for scope, records := range c.from {
			for _, rec := range records {
				c.into[scope] = append(c.into[scope], record(rec))
			}
		}
	}
	for _, rec := range t.Records {
		r := record(rec)
		if r.ID() == "" {
			return nil, fmt.Errorf("tree record without gid")
		}
		src.Records[r.ID()] = r
	}
	return src, nil
}

// record copies a YAML mapping so scenarios cannot alias fake records.
func record(m map[string]any) source.Record {
	rec := make(source.Record, len(m))
	for k, v := range m {
		rec[k] = v
	}
	return rec
}

// traceSource records every API call after it returns.
type traceSource struct {
	src    source.Source
	result *Result
}

func (s *traceSource) List(ctx context.Context, req source.ListRequest) (source.Page, error) {
	page, err := s.src.List(ctx, req)
	s.result.add(EventCall, callDetail(req.String(), req.Offset, err))
	return page, err
}

func (s *traceSource) Get(ctx context.Context, resource, id string, fields []string) (source.Record, error) {
	rec, err := s.src.Get(ctx, resource, id, fields)
	s.result.add(EventCall, callDetail(resource+"/"+id, "", err))
	return rec, err
}

func callDetail(op, offset string, err error) string {
	detail := "GET " + op
	if offset != "" {
		detail += " offset=" + offset
	}
	if err != nil {
		detail += " failed=" + source.KindOf(err).String()
	}
	return detail
}

// traceCredential succeeds for the first failAfter refreshes, then fails.
type traceCredential struct {
	result    *Result
	failAfter *int
	attempts  int
}

func (c *traceCredential) Refresh(ctx context.Context) error {
	c.attempts++
	if c.failAfter != nil && c.attempts > *c.failAfter {
		c.result.add(EventRefresh, "failed")
		return errors.New("refresh token rejected")
	}
	c.result.Refreshes++
	c.result.add(EventRefresh, "#"+strconv.Itoa(c.result.Refreshes))
	return nil
}

// traceEmitter records emitter events and writes the Singer stream.
type traceEmitter struct {
	result *Result
	out    *output.Writer
}

func (e *traceEmitter) Record(stream engine.Stream, rec source.Record) error {
	e.result.add(EventEmit, stream.Name+" "+rec.ID())
	return e.out.Record(stream, rec)
}

func (e *traceEmitter) Commit(stream engine.Stream, watermark time.Time) error {
	e.result.add(EventCommit, stream.Name+" "+watermark.UTC().Format(time.RFC3339Nano))
	return e.out.Commit(stream, watermark)
}
