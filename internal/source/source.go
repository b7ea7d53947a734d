package source

import (
	"context"
	"sort"
	"strings"
)

// ListRequest addresses one page of a paginated collection.
type ListRequest struct {
	// Path is the collection path relative to the API root,
	// e.g. "workspaces" or "tasks/1200/subtasks".
	Path string

	// Params are query filters (workspace, project, archived, ...).
	Params map[string]string

	// Fields is the explicit projection. Empty means the API default.
	Fields []string

	// Offset is the continuation token returned by the previous page.
	// Empty requests the first page.
	Offset string

	// Limit is the page size. Zero lets the Source pick.
	Limit int
}

// WithOffset returns a copy of the request pointing at the given page.
func (r ListRequest) WithOffset(offset string) ListRequest {
	r.Offset = offset
	return r
}

// String renders the request for logs. Params are sorted so the output is
// stable.
func (r ListRequest) String() string {
	if len(r.Params) == 0 {
		return r.Path
	}
	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(r.Path)
	for i, k := range keys {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(r.Params[k])
	}
	return b.String()
}

// Page is one page of a collection.
type Page struct {
	Records []Record

	// NextOffset is empty on the last page.
	NextOffset string
}

// Source is the remote API as seen by the engine.
//
// Implementations must be safe to call sequentially from a single
// goroutine; the engine never issues concurrent calls against one Source.
type Source interface {
	// List fetches one page of a collection.
	List(ctx context.Context, req ListRequest) (Page, error)

	// Get fetches a single record of the given resource type by id.
	Get(ctx context.Context, resource, id string, fields []string) (Record, error)
}
