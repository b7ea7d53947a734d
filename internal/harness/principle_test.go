package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// trace builds a result from kind/detail pairs.
func trace(events ...string) *Result {
	r := NewResult()
	for i := 0; i+1 < len(events); i += 2 {
		r.add(events[i], events[i+1])
	}
	return r
}

func TestCheckPrinciples_CleanTrace(t *testing.T) {
	r := trace(
		EventRun, "1 tasks",
		EventRefresh, "#1",
		EventCall, "GET workspaces",
		EventEmit, "tasks t1",
		EventCommit, "tasks 2024-01-02T00:00:00Z",
		EventPass, "tasks DONE run-1 observed=1 emitted=1 skipped=0 duplicates=0 failed_nodes=0",
		EventRun, "2 tasks",
		EventRefresh, "#2",
		EventEmit, "tasks t1",
		EventCommit, "tasks 2024-01-02T00:00:00Z",
		EventPass, "tasks DONE run-2 observed=1 emitted=1 skipped=0 duplicates=0 failed_nodes=0",
	)
	assert.Empty(t, CheckPrinciples(r, 5))
}

func TestCheckPrinciples_EmitOnce(t *testing.T) {
	r := trace(
		EventRun, "1 projects,tasks",
		EventEmit, "projects p1",
		EventEmit, "projects p1",
		EventCommit, "projects 2024-01-01T00:00:00Z",
		EventPass, "projects DONE run-1",
		EventEmit, "tasks t1",
		EventEmit, "tasks t1",
		EventCommit, "tasks 2024-01-01T00:00:00Z",
		EventPass, "tasks DONE run-2",
	)
	// Flat streams may legitimately repeat; only tasks is checked.
	assert.Equal(t, []string{"emit-once: run 1: tasks t1 emitted twice (seq 7)"}, CheckPrinciples(r, 5))
}

func TestCheckPrinciples_CommitAfterRecords(t *testing.T) {
	r := trace(
		EventRun, "1 tags,tasks",
		EventCommit, "tags 2024-01-01T00:00:00Z",
		EventEmit, "tags g1",
		EventPass, "tags DONE run-1",
		EventCommit, "tasks 2024-01-01T00:00:00Z",
		EventPass, "tasks FAILED run-2 failed_in=COMMIT",
		EventRun, "2 projects",
		EventPass, "projects DONE run-3",
	)
	assert.Equal(t, []string{
		"commit-after-records: run 1: tags record emitted after commit (seq 3)",
		"commit-after-records: run 1: failed tasks pass committed",
		"commit-after-records: run 2: projects pass finished without commit",
	}, CheckPrinciples(r, 5))
}

func TestCheckPrinciples_CallBudget(t *testing.T) {
	r := trace(
		EventRefresh, "#1",
		EventCall, "GET a",
		EventCall, "GET b",
		EventRefresh, "failed",
		EventCall, "GET c",
		EventRefresh, "#2",
		EventCall, "GET d",
	)
	assert.Equal(t, []string{"call-budget: call 3 since last refresh (seq 5), budget is 2"}, CheckPrinciples(r, 2))
}

func TestCheckPrinciples_MonotonicCommit(t *testing.T) {
	r := trace(
		EventCommit, "tasks 2024-01-05T00:00:00Z",
		EventCommit, "tags 2024-01-01T00:00:00Z",
		EventCommit, "tasks 2024-01-04T00:00:00Z",
		EventCommit, "tasks yesterday",
	)
	assert.Equal(t, []string{
		"monotonic-commit: tasks moved back from 2024-01-05T00:00:00Z to 2024-01-04T00:00:00Z (seq 3)",
		`monotonic-commit: unparseable commit "tasks yesterday" (seq 4)`,
	}, CheckPrinciples(r, 5))
}

func TestPrinciples_Named(t *testing.T) {
	names := make([]string, len(Principles))
	for i, p := range Principles {
		names[i] = p.Name
		assert.NotEmpty(t, p.Description)
	}
	assert.Equal(t, []string{"emit-once", "commit-after-records", "call-budget", "monotonic-commit"}, names)
}
