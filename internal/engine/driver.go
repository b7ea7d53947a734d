package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/roach88/asanatap/internal/source"
	"github.com/roach88/asanatap/internal/store"
)

// Store is the persistent side of the watermark store plus run history.
// Implemented by *store.Store.
type Store interface {
	Watermark(ctx context.Context, stream string) (time.Time, bool, error)
	BeginRun(ctx context.Context, run store.Run) error
	CommitRun(ctx context.Context, run store.Run) error
	FailRun(ctx context.Context, run store.Run) error
}

// Driver runs stream passes against one source and store.
type Driver struct {
	src       source.Source
	store     Store
	watchdog  *Watchdog
	clock     Clock
	runIDs    RunIDGenerator
	logger    *slog.Logger
	startDate time.Time
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithClock sets the clock used for run timestamps.
func WithClock(c Clock) DriverOption {
	return func(d *Driver) {
		d.clock = c
	}
}

// WithRunIDs sets the run id generator.
func WithRunIDs(g RunIDGenerator) DriverOption {
	return func(d *Driver) {
		d.runIDs = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) {
		d.logger = l
	}
}

// NewDriver creates a driver. startDate is the watermark of a stream that
// has never been committed.
func NewDriver(src source.Source, st Store, wd *Watchdog, startDate time.Time, opts ...DriverOption) *Driver {
	d := &Driver{
		src:       src,
		store:     st,
		watchdog:  wd,
		clock:     RealClock{},
		runIDs:    UUIDv7Generator{},
		logger:    slog.Default(),
		startDate: startDate,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// PassResult summarizes a pass.
type PassResult struct {
	RunID  string
	Stream string
	State  State

	// Committed is the watermark read at START.
	Committed time.Time

	// Session is the final session high-water mark. After a successful
	// pass it is the new committed watermark.
	Session time.Time

	Stats store.RunStats
	Err   error
}

// Pass is one replication pass over one stream. Create with
// Driver.NewPass and consume Records exactly once.
type Pass struct {
	d       *Driver
	stream  Stream
	logger  *slog.Logger
	state   State
	runID   string
	started time.Time

	committed time.Time
	session   time.Time
	visited   *Visited
	crawler   *Crawler
	stats     store.RunStats
	err       error
}

// NewPass prepares a pass. No I/O happens until Records is ranged over.
func (d *Driver) NewPass(stream Stream) *Pass {
	return &Pass{
		d:      d,
		stream: stream,
		logger: d.logger.With("stream", stream.Name),
		state:  StateStart,
	}
}

// Records lazily produces the records to emit. The watermark is committed
// after the last record has been yielded, before the sequence ends. If
// the pass fails, the final element is (nil, *PassError). If the consumer
// stops early, nothing is committed.
func (p *Pass) Records(ctx context.Context) iter.Seq2[source.Record, error] {
	return func(yield func(source.Record, error) bool) {
		err := p.run(ctx, yield)
		if err == nil {
			return
		}
		perr := p.fail(ctx, err)
		if !errors.Is(err, ErrStopped) {
			yield(nil, perr)
		}
	}
}

// Result reports the outcome once Records has finished.
func (p *Pass) Result() PassResult {
	return PassResult{
		RunID:     p.runID,
		Stream:    p.stream.Name,
		State:     p.state,
		Committed: p.committed,
		Session:   p.session,
		Stats:     p.totals(),
		Err:       p.err,
	}
}

func (p *Pass) enter(s State) {
	p.logger.Debug("pass state", "from", p.state, "to", s)
	p.state = s
}

func (p *Pass) run(ctx context.Context, yield func(source.Record, error) bool) error {
	d := p.d

	// START
	if err := d.watchdog.Start(ctx); err != nil {
		return err
	}
	committed, ok, err := d.store.Watermark(ctx, p.stream.Name)
	if err != nil {
		return err
	}
	if !ok {
		committed = d.startDate
	}
	p.committed = committed
	p.session = committed
	if p.stream.Hierarchical {
		p.visited = NewVisited()
		p.crawler = NewCrawler(d.src, d.watchdog, p.visited, p.stream, p.logger)
	}

	p.runID = d.runIDs.Generate()
	p.started = d.clock.Now()
	p.logger = p.logger.With("run", p.runID)
	if err := d.store.BeginRun(ctx, store.Run{ID: p.runID, Stream: p.stream.Name, StartedAt: p.started}); err != nil {
		return err
	}
	p.logger.Info("pass started", "watermark", committed)

	// ITERATE_SCOPES
	p.enter(StateIterateScopes)
	for scope, err := range p.scopes(ctx) {
		if err != nil {
			return err
		}
		if p.stream.Hierarchical {
			p.enter(StateCrawlHierarchy)
			err = p.crawlScope(ctx, scope, yield)
		} else {
			p.enter(StateIterateFlat)
			err = p.flatScope(ctx, scope, yield)
		}
		if err != nil {
			return err
		}
		p.enter(StateIterateScopes)
	}

	// COMMIT
	p.enter(StateCommit)
	run := p.snapshot()
	if err := d.store.CommitRun(ctx, run); err != nil {
		return err
	}
	p.enter(StateDone)
	p.logger.Info("pass committed",
		"watermark", p.session,
		"observed", run.Stats.Observed,
		"emitted", run.Stats.Emitted,
		"skipped", run.Stats.Skipped,
		"duplicates", run.Stats.Duplicates,
		"failed_nodes", run.Stats.FailedNodes,
		"visited", p.visitedCount(),
	)
	return nil
}

// scopes enumerates the top-level containers of the stream. Scopes are
// always fully re-enumerated and never filtered by watermark.
func (p *Pass) scopes(ctx context.Context) iter.Seq2[string, error] {
	d := p.d
	workspaces := source.ListRequest{Path: "workspaces", Fields: workspaceFields}

	return func(yield func(string, error) bool) {
		for ws, err := range paginate(ctx, d.watchdog, d.src, workspaces) {
			if err != nil {
				yield("", fmt.Errorf("list workspaces: %w", err))
				return
			}
			if p.stream.Scope == ScopeWorkspace {
				if !yield(ws.ID(), nil) {
					return
				}
				continue
			}

			projects := source.ListRequest{
				Path:   "projects",
				Params: map[string]string{"workspace": ws.ID(), "archived": "false"},
				Fields: scopeProjectFields,
			}
			for proj, err := range paginate(ctx, d.watchdog, d.src, projects) {
				if err != nil {
					yield("", fmt.Errorf("list projects of workspace %s: %w", ws.ID(), err))
					return
				}
				if !yield(proj.ID(), nil) {
					return
				}
			}
		}
	}
}

// flatScope emits the stream's records of one scope.
func (p *Pass) flatScope(ctx context.Context, scope string, yield func(source.Record, error) bool) error {
	req := p.stream.request(scope)
	for rec, err := range paginate(ctx, p.d.watchdog, p.d.src, req) {
		if err != nil {
			return fmt.Errorf("list %s: %w", req, err)
		}
		if !p.observe(rec, yield) {
			return ErrStopped
		}
	}
	return nil
}

// crawlScope emits a project's direct tasks and then crawls their
// subtasks. Direct tasks go through the Visited set too, so a task seen
// under one project is not yielded again under another or as a subtask.
func (p *Pass) crawlScope(ctx context.Context, scope string, yield func(source.Record, error) bool) error {
	req := p.stream.request(scope)
	var seeds []source.Record

	for rec, err := range paginate(ctx, p.d.watchdog, p.d.src, req) {
		if err != nil {
			return fmt.Errorf("list %s: %w", req, err)
		}
		if err := p.d.watchdog.Check(ctx); err != nil {
			return err
		}
		id := rec.ID()
		if id == "" {
			continue
		}
		if !p.visited.Mark(id) {
			p.stats.Duplicates++
			continue
		}
		seeds = append(seeds, rec)
		if !p.observe(rec, yield) {
			return ErrStopped
		}
	}

	if len(seeds) == 0 {
		return nil
	}
	return p.crawler.Crawl(ctx, seeds, func(rec source.Record) bool {
		return p.observe(rec, yield)
	})
}

// observe advances the session mark, applies the filter and yields the
// record if it passes. Returns false if the consumer stopped.
func (p *Pass) observe(rec source.Record, yield func(source.Record, error) bool) bool {
	p.stats.Observed++
	key := p.stream.ReplicationKey

	if t, ok := rec.Time(key); ok {
		p.session = Advance(p.session, t)
	} else {
		p.logger.Warn("record without usable replication key", "id", rec.ID(), "key", key)
	}

	if !ShouldEmit(rec, key, p.committed) {
		p.stats.Skipped++
		return true
	}
	p.stats.Emitted++
	return yield(rec, nil)
}

// visitedCount is the number of distinct hierarchical ids marked this
// pass. Flat streams report 0.
func (p *Pass) visitedCount() int {
	if p.visited == nil {
		return 0
	}
	return p.visited.Len()
}

// totals merges the driver's counters with the crawler's.
func (p *Pass) totals() store.RunStats {
	stats := p.stats
	if p.crawler != nil {
		cs := p.crawler.Stats()
		stats.Duplicates += cs.Duplicates
		stats.FailedNodes += cs.FailedNodes
	}
	return stats
}

// snapshot captures the pass as a store.Run.
func (p *Pass) snapshot() store.Run {
	return store.Run{
		ID:         p.runID,
		Stream:     p.stream.Name,
		StartedAt:  p.started,
		FinishedAt: p.d.clock.Now(),
		Stats:      p.totals(),
		Watermark:  p.session,
	}
}

// fail records a failed pass and wraps err. The watermark is untouched.
func (p *Pass) fail(ctx context.Context, err error) error {
	failedIn := p.state
	p.err = &PassError{Stream: p.stream.Name, RunID: p.runID, State: failedIn, Err: err}
	p.enter(StateFailed)

	if p.runID != "" {
		run := p.snapshot()
		run.Error = err.Error()
		// The pass context may be the reason we failed.
		if ferr := p.d.store.FailRun(context.WithoutCancel(ctx), run); ferr != nil {
			p.logger.Error("recording failed run", "error", ferr)
		}
	}

	if errors.Is(err, ErrStopped) {
		p.logger.Info("pass stopped before commit", "state", failedIn)
	} else {
		p.logger.Error("pass failed", "state", failedIn, "error", err)
	}
	return p.err
}
