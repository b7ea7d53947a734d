package testutil

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/asanatap/internal/source"
)

// FakeSource is an in-memory Asana with paging and failure injection.
//
// Collections are keyed by the scoping id:
//
//	Projects[workspace], Tags[workspace], Tasks[project], Subtasks[parent]
//
// Every call is appended to Calls as "GET <request>" (offset excluded), so
// tests can assert call order and projections.
//
// Thread-safety: FakeSource is safe for concurrent use via internal mutex.
type FakeSource struct {
	mu sync.Mutex

	Workspaces []source.Record
	Projects   map[string][]source.Record
	Tags       map[string][]source.Record
	Tasks      map[string][]source.Record
	Subtasks   map[string][]source.Record

	// Records backs Get; a Get for an id missing here is NotFound.
	Records map[string]source.Record

	// PageSize splits collections into pages. Zero means one page.
	PageSize int

	Calls  []string
	Fields map[string][]string // last projection per request

	failures []*failure
}

type failure struct {
	op        string
	kind      source.Kind
	remaining int // -1 = forever
}

// NewFakeSource creates an empty fake.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		Projects: map[string][]source.Record{},
		Tags:     map[string][]source.Record{},
		Tasks:    map[string][]source.Record{},
		Subtasks: map[string][]source.Record{},
		Records:  map[string]source.Record{},
		Fields:   map[string][]string{},
	}
}

var _ source.Source = (*FakeSource)(nil)

// FailOn makes the next times calls of op fail with kind. op is the
// request as rendered in Calls without the "GET " prefix, e.g.
// "tasks/t1/subtasks" or "tasks?project=p1". times < 0 fails forever.
func (f *FakeSource) FailOn(op string, kind source.Kind, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, &failure{op: op, kind: kind, remaining: times})
}

// CallCount returns the number of calls made so far.
func (f *FakeSource) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// List implements source.Source.
func (f *FakeSource) List(ctx context.Context, req source.ListRequest) (source.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return source.Page{}, source.NewError(source.KindFatal, "GET "+req.String(), 0, err)
	}

	op := req.String()
	f.Calls = append(f.Calls, "GET "+op)
	f.Fields[op] = append([]string(nil), req.Fields...)
	if err := f.injected(op); err != nil {
		return source.Page{}, err
	}

	records, err := f.collection(req)
	if err != nil {
		return source.Page{}, err
	}
	return f.page(records, req.Offset)
}

// Get implements source.Source.
func (f *FakeSource) Get(ctx context.Context, resource, id string, fields []string) (source.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	op := resource + "/" + id
	if err := ctx.Err(); err != nil {
		return nil, source.NewError(source.KindFatal, "GET "+op, 0, err)
	}
	f.Calls = append(f.Calls, "GET "+op)
	f.Fields[op] = append([]string(nil), fields...)
	if err := f.injected(op); err != nil {
		return nil, err
	}

	rec, ok := f.Records[id]
	if !ok {
		return nil, source.NewError(source.KindNotFound, "GET "+op, 404, nil)
	}
	return rec, nil
}

func (f *FakeSource) injected(op string) error {
	for _, fl := range f.failures {
		if fl.op != op || fl.remaining == 0 {
			continue
		}
		if fl.remaining > 0 {
			fl.remaining--
		}
		status := map[source.Kind]int{
			source.KindAuthExpired: 401,
			source.KindNotFound:    404,
			source.KindTransient:   503,
			source.KindFatal:       400,
		}[fl.kind]
		return source.NewError(fl.kind, "GET "+op, status, errors.New("injected"))
	}
	return nil
}

func (f *FakeSource) collection(req source.ListRequest) ([]source.Record, error) {
	switch req.Path {
	case "workspaces":
		return f.Workspaces, nil
	case "projects":
		all := f.Projects[req.Params["workspace"]]
		if req.Params["archived"] != "false" {
			return all, nil
		}
		var live []source.Record
		for _, p := range all {
			if archived, _ := p["archived"].(bool); !archived {
				live = append(live, p)
			}
		}
		return live, nil
	case "tags":
		return f.Tags[req.Params["workspace"]], nil
	case "tasks":
		return f.Tasks[req.Params["project"]], nil
	}

	if rest, ok := strings.CutPrefix(req.Path, "tasks/"); ok {
		if parent, ok := strings.CutSuffix(rest, "/subtasks"); ok {
			return f.Subtasks[parent], nil
		}
	}
	return nil, source.NewError(source.KindNotFound, "GET "+req.Path, 404, nil)
}

func (f *FakeSource) page(records []source.Record, offset string) (source.Page, error) {
	start := 0
	if offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 || n > len(records) {
			return source.Page{}, source.NewError(source.KindFatal, "offset", 400, fmt.Errorf("bad offset %q", offset))
		}
		start = n
	}
	if f.PageSize <= 0 || start+f.PageSize >= len(records) {
		return source.Page{Records: records[start:]}, nil
	}
	end := start + f.PageSize
	return source.Page{Records: records[start:end], NextOffset: strconv.Itoa(end)}, nil
}

// FakeCredential counts refreshes and can be told to fail.
type FakeCredential struct {
	mu        sync.Mutex
	refreshes int
	err       error

	// OnRefresh runs after each successful refresh.
	OnRefresh func(n int)
}

// Refresh implements engine.Refresher.
func (c *FakeCredential) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.refreshes++
	n := c.refreshes
	hook := c.OnRefresh
	c.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

// FailWith makes subsequent refreshes fail (nil restores success).
func (c *FakeCredential) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Refreshes returns the number of successful refreshes.
func (c *FakeCredential) Refreshes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

// Workspace builds a workspace record.
func Workspace(gid string) source.Record {
	return source.Record{"gid": gid, "name": "workspace " + gid}
}

// Project builds a project record.
func Project(gid, modifiedAt string) source.Record {
	return source.Record{"gid": gid, "name": "project " + gid, "modified_at": modifiedAt, "archived": false}
}

// Tag builds a tag record.
func Tag(gid, createdAt string) source.Record {
	return source.Record{"gid": gid, "name": "tag " + gid, "created_at": createdAt}
}

// Task builds a task record with the given subtask count.
func Task(gid, modifiedAt string, numSubtasks int) source.Record {
	return source.Record{"gid": gid, "name": "task " + gid, "modified_at": modifiedAt, "num_subtasks": numSubtasks}
}
