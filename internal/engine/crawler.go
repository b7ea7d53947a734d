package engine

import (
	"context"
	"log/slog"
	"slices"

	"github.com/roach88/asanatap/internal/source"
)

// node is a crawl frame: a record whose children are still to be fetched.
type node struct {
	id string

	// subtasks is the parent's subtask count; -1 when unknown.
	subtasks int64
}

func nodeOf(rec source.Record) node {
	n := node{id: rec.ID(), subtasks: -1}
	if c, ok := rec.Int(SubtaskCountField); ok {
		n.subtasks = c
	}
	return n
}

// CrawlStats counts crawler outcomes for one pass.
type CrawlStats struct {
	Expanded    int64 // nodes whose children were fetched
	Duplicates  int64 // children already visited
	FailedNodes int64 // nodes skipped after a fetch failure
}

// Crawler walks the subtask tree below a set of seed records.
//
// Traversal is depth-first per branch using an explicit stack, so depth
// is bounded by memory rather than the goroutine stack. Each child id is
// marked in the shared Visited set before it is handed to the visit
// callback, so a node reachable through several parents, or re-listed
// after a retry, is yielded once.
//
// A failed fetch for one node is isolated: it is logged, the credential is
// refreshed defensively, and traversal continues with the next frame. Only
// a refresh failure, a cancelled context or a stopped consumer abort the
// crawl.
type Crawler struct {
	src     source.Source
	wd      *Watchdog
	visited *Visited
	stream  Stream
	logger  *slog.Logger
	stats   CrawlStats
}

// NewCrawler creates a crawler for a hierarchical stream.
func NewCrawler(src source.Source, wd *Watchdog, visited *Visited, stream Stream, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		src:     src,
		wd:      wd,
		visited: visited,
		stream:  stream,
		logger:  logger,
	}
}

// Stats returns the counters accumulated so far.
func (c *Crawler) Stats() CrawlStats {
	return c.stats
}

// Crawl visits every descendant of seeds. The seeds themselves are not
// visited; the caller has already handled them. visit returning false
// stops the crawl with ErrStopped.
func (c *Crawler) Crawl(ctx context.Context, seeds []source.Record, visit func(source.Record) bool) error {
	stack := make([]node, 0, len(seeds))
	for i := len(seeds) - 1; i >= 0; i-- {
		stack = append(stack, nodeOf(seeds[i]))
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := c.wd.Check(ctx); err != nil {
			return err
		}
		if n.subtasks == 0 || n.id == "" {
			continue
		}

		children, err := c.expand(ctx, n, visit)
		if err != nil {
			if isFatal(ctx, err) {
				return err
			}
			if err := c.isolate(ctx, n, err); err != nil {
				return err
			}
		}

		// Push in reverse so the first child is expanded first.
		slices.Reverse(children)
		stack = append(stack, children...)
	}
	return nil
}

// expand lists the children of n, visiting each new one. It returns the
// frames for the children it visited, even on error, so a failure on a
// later page does not lose the descendants of earlier ones.
func (c *Crawler) expand(ctx context.Context, n node, visit func(source.Record) bool) ([]node, error) {
	c.stats.Expanded++
	var next []node

	for child, err := range paginate(ctx, c.wd, c.src, c.stream.childRequest(n.id)) {
		if err != nil {
			return next, err
		}

		id := child.ID()
		if id == "" {
			continue
		}
		if !c.visited.Mark(id) {
			c.stats.Duplicates++
			continue
		}

		if !child.Has(c.stream.ReplicationKey) {
			full, err := fetchOne(ctx, c.wd, c.src, c.stream.Resource, id, c.stream.Fields)
			if err != nil {
				if isFatal(ctx, err) {
					return next, err
				}
				if err := c.isolate(ctx, node{id: id}, err); err != nil {
					return next, err
				}
				continue
			}
			child = full
		}

		if !visit(child) {
			return next, ErrStopped
		}
		next = append(next, nodeOf(child))
	}
	return next, nil
}

// isolate records a node-level failure and refreshes the credential on
// the assumption the failure may be an expiry symptom.
func (c *Crawler) isolate(ctx context.Context, n node, cause error) error {
	c.stats.FailedNodes++
	c.logger.Warn("skipping node after fetch failure",
		"stream", c.stream.Name,
		"node", n.id,
		"kind", source.KindOf(cause).String(),
		"error", cause,
	)
	return c.wd.Refresh(ctx, "node fetch failed")
}
