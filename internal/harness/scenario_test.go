package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one run"
start_date: "2024-01-01T00:00:00Z"
tree:
  workspaces: [w1]
runs:
  - streams: [tags]
assertions:
  - {type: refreshes, count: 1}
`

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, []string{"w1"}, s.Tree.Workspaces)
	require.Len(t, s.Runs, 1)
	assert.Equal(t, []string{"tags"}, s.Runs[0].Streams)
	assert.Nil(t, s.RefreshFailsAfter)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Full(t *testing.T) {
	doc := `
name: full
description: "everything"
start_date: "2024-01-01T00:00:00Z"
page_size: 2
max_calls: 3
refresh_fails_after: 4
watermarks:
  tasks: "2024-02-01T00:00:00Z"
tree:
  workspaces: [w1]
  projects:
    w1:
      - {gid: p1, archived: true}
  tasks:
    p1:
      - {gid: t1, num_subtasks: 2}
  records:
    - {gid: s1, modified_at: "2024-03-01T00:00:00Z"}
failures:
  - {op: "tasks/t1/subtasks", kind: auth_expired, times: -1}
runs:
  - {streams: [tasks], expect_error: "boom"}
assertions:
  - {type: emitted, stream: tasks, run: 1, ids: [t1]}
  - {type: emitted_count, stream: tasks, id: t1, count: 1}
  - {type: watermark, stream: tasks, value: "2024-02-01T00:00:00Z"}
  - {type: run_status, stream: tasks, status: failed}
`
	s, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 2, s.PageSize)
	assert.Equal(t, 3, s.MaxCalls)
	require.NotNil(t, s.RefreshFailsAfter)
	assert.Equal(t, 4, *s.RefreshFailsAfter)
	assert.Equal(t, true, s.Tree.Projects["w1"][0]["archived"])
	assert.Equal(t, 2, s.Tree.Tasks["p1"][0]["num_subtasks"])
	assert.Equal(t, Failure{Op: "tasks/t1/subtasks", Kind: "auth_expired", Times: -1}, s.Failures[0])
	assert.Equal(t, "boom", s.Runs[0].ExpectError)
	assert.Len(t, s.Assertions, 4)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
		wantErr string
	}{
		{"unknown field", [2]string{"description:", "descripton:"}, "field descripton not found"},
		{"missing name", [2]string{"name: minimal", "name: \"\""}, "name is required"},
		{"missing description", [2]string{`description: "one run"`, `description: ""`}, "description is required"},
		{"bad start date", [2]string{`"2024-01-01T00:00:00Z"`, `"yesterday"`}, "start_date"},
		{"negative page size", [2]string{"tree:", "page_size: -1\ntree:"}, "page_size must be non-negative"},
		{"negative max calls", [2]string{"tree:", "max_calls: -2\ntree:"}, "max_calls must be non-negative"},
		{"negative refresh budget", [2]string{"tree:", "refresh_fails_after: -1\ntree:"}, "refresh_fails_after"},
		{"unknown watermark stream", [2]string{"tree:", "watermarks:\n  users: \"2024-01-01T00:00:00Z\"\ntree:"}, `watermarks: unknown stream "users"`},
		{"bad watermark", [2]string{"tree:", "watermarks:\n  tags: soon\ntree:"}, "watermarks.tags"},
		{"record without gid", [2]string{"workspaces: [w1]", "workspaces: [w1]\n  records:\n    - {name: x}"}, "tree.records[0]: gid is required"},
		{"failure without op", [2]string{"runs:", "failures:\n  - {kind: fatal, times: 1}\nruns:"}, "failures[0]: op is required"},
		{"unknown failure kind", [2]string{"runs:", "failures:\n  - {op: tags, kind: flaky, times: 1}\nruns:"}, `unknown kind "flaky"`},
		{"zero times", [2]string{"runs:", "failures:\n  - {op: tags, kind: fatal, times: 0}\nruns:"}, "times must be positive or -1"},
		{"no runs", [2]string{"  - streams: [tags]\n", ""}, "runs list is required"},
		{"unknown run stream", [2]string{"streams: [tags]", "streams: [users]"}, `runs[0]: unknown stream "users"`},
		{"no assertions", [2]string{"  - {type: refreshes, count: 1}\n", ""}, "assertions list is required"},
		{"unknown assertion", [2]string{"type: refreshes", "type: vibes"}, `unknown assertion type "vibes"`},
		{"negative count", [2]string{"count: 1", "count: -1"}, "count must be non-negative"},
		{"assertion without stream", [2]string{"{type: refreshes, count: 1}", "{type: watermark}"}, `unknown stream "" for watermark`},
		{"run out of range", [2]string{"{type: refreshes, count: 1}", "{type: emitted, stream: tags, run: 2}"}, "run 2 out of range"},
		{"emitted_count without id", [2]string{"{type: refreshes, count: 1}", "{type: emitted_count, stream: tags}"}, "id is required"},
		{"bad watermark value", [2]string{"{type: refreshes, count: 1}", "{type: watermark, stream: tags, value: later}"}, "value"},
		{"run_status without status", [2]string{"{type: refreshes, count: 1}", "{type: run_status, stream: tags}"}, "status is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := strings.Replace(minimalScenario, tt.replace[0], tt.replace[1], 1)
			require.NotEqual(t, minimalScenario, doc, "replacement did not apply")

			_, err := ParseScenario([]byte(doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
