package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreams_JSON(t *testing.T) {
	stdout, _, err := execute("streams", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data []StreamView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data, 3)

	tasks := resp.Data[2]
	assert.Equal(t, "tasks", tasks.Name)
	assert.Equal(t, "modified_at", tasks.ReplicationKey)
	assert.Equal(t, "project", tasks.Scope)
	assert.True(t, tasks.Hierarchical)
	assert.Contains(t, tasks.Fields, "num_subtasks")

	assert.Equal(t, "created_at", resp.Data[1].ReplicationKey)
}

func TestStreams_Text(t *testing.T) {
	stdout, _, err := execute("streams")
	require.NoError(t, err)
	assert.Contains(t, stdout, "STREAM")
	assert.Contains(t, stdout, "projects")
	assert.Contains(t, stdout, "workspace")
}

func TestRuns_MissingDatabase(t *testing.T) {
	_, _, err := execute("runs", "--db", "/nonexistent/state.db")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
