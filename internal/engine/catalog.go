package engine

import "github.com/roach88/asanatap/internal/source"

// ScopeKind is the top-level container a stream is listed under.
type ScopeKind int

const (
	// ScopeWorkspace lists the stream once per workspace.
	ScopeWorkspace ScopeKind = iota + 1
	// ScopeProject lists the stream once per non-archived project.
	ScopeProject
)

// Stream describes one replicated record type.
type Stream struct {
	Name           string
	ReplicationKey string

	// Fields is the exact projection requested for records of this stream.
	Fields []string

	Scope ScopeKind

	// Hierarchical streams are crawled for children and deduplicated
	// through a Visited set.
	Hierarchical bool

	// Resource is the collection path (and the Get resource for refetch).
	Resource string
}

// request builds the scoped listing for one scope id.
func (s Stream) request(scopeID string) source.ListRequest {
	param := "workspace"
	if s.Scope == ScopeProject {
		param = "project"
	}
	return source.ListRequest{
		Path:   s.Resource,
		Params: map[string]string{param: scopeID},
		Fields: s.Fields,
	}
}

// childRequest lists the direct children of a hierarchical record.
func (s Stream) childRequest(parentID string) source.ListRequest {
	return source.ListRequest{
		Path:   s.Resource + "/" + parentID + "/subtasks",
		Fields: s.Fields,
	}
}

// Scope listings request only the id; archived projects are filtered
// server-side by the archived=false parameter.
var (
	workspaceFields    = []string{"gid"}
	scopeProjectFields = []string{"gid"}
)

// SubtaskCountField is the cheap pre-check consulted before fetching
// children.
const SubtaskCountField = "num_subtasks"

// Projects replicates every project (archived included) per workspace.
var Projects = Stream{
	Name:           "projects",
	ReplicationKey: "modified_at",
	Resource:       "projects",
	Scope:          ScopeWorkspace,
	Fields: []string{
		"name", "gid", "owner", "current_status", "custom_fields",
		"default_view", "due_date", "due_on", "html_notes", "is_template",
		"created_at", "modified_at", "start_on", "archived", "public",
		"members", "followers", "color", "notes", "icon", "permalink_url",
		"workspace", "team",
	},
}

// Tags replicates tags per workspace, keyed on creation time since tags
// carry no modification time.
var Tags = Stream{
	Name:           "tags",
	ReplicationKey: "created_at",
	Resource:       "tags",
	Scope:          ScopeWorkspace,
	Fields: []string{
		"gid", "resource_type", "created_at", "followers", "name", "color",
		"notes", "permalink_url", "workspace",
	},
}

// Tasks replicates tasks of every non-archived project plus all of their
// subtasks, at any depth.
var Tasks = Stream{
	Name:           "tasks",
	ReplicationKey: "modified_at",
	Resource:       "tasks",
	Scope:          ScopeProject,
	Hierarchical:   true,
	Fields: []string{
		"gid", "resource_type", "name", "approval_status", "assignee_status",
		"completed", "completed_at", "completed_by", "created_at",
		"dependencies", "dependents", "due_at", "due_on", "external",
		"hearted", "hearts", "html_notes", "is_rendered_as_separator", "liked",
		"likes", "memberships", "modified_at", "notes", "num_hearts",
		"num_likes", "num_subtasks", "resource_subtype", "start_on",
		"assignee", "custom_fields", "followers", "parent", "permalink_url",
		"projects", "tags", "workspace",
	},
}

// Catalog returns all streams in replication order.
func Catalog() []Stream {
	return []Stream{Projects, Tags, Tasks}
}

// Lookup finds a stream by name.
func Lookup(name string) (Stream, bool) {
	for _, s := range Catalog() {
		if s.Name == name {
			return s, true
		}
	}
	return Stream{}, false
}

// StreamNames lists catalog stream names in order.
func StreamNames() []string {
	streams := Catalog()
	names := make([]string, len(streams))
	for i, s := range streams {
		names[i] = s.Name
	}
	return names
}
