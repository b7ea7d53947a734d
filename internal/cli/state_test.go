package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeState(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestStateImportAndShow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	newer := writeState(t, `{"bookmarks":{"tasks":{"modified_at":"2024-03-01T00:00:00Z"},"tags":{"created_at":"2024-02-01T00:00:00Z"}}}`)
	stdout, _, err := execute("state", "import", newer, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "tasks")
	assert.Contains(t, stdout, "imported")

	older := writeState(t, `{"type":"STATE","value":{"bookmarks":{"tasks":{"modified_at":"2023-01-01T00:00:00Z"}}}}`)
	stdout, _, err = execute("state", "import", older, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "kept newer")

	stdout, _, err = execute("state", "show", "--db", dbPath, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Status string          `json:"status"`
		Data   []WatermarkView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "tags", resp.Data[0].Stream)
	assert.Equal(t, "tasks", resp.Data[1].Stream)
	assert.Equal(t, "2024-03-01T00:00:00Z", resp.Data[1].Watermark)
	assert.Equal(t, "import", resp.Data[1].RunID)
}

func TestStateImport_Errors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	_, _, err := execute("state", "import", "/nonexistent/state.json", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	bad := writeState(t, `{"bookmarks":{"stories":{"created_at":"2024-01-01T00:00:00Z"}}}`)
	_, _, err = execute("state", "import", bad, "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "stories")
}

func TestStateShow_MissingDatabase(t *testing.T) {
	_, _, err := execute("state", "show", "--db", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStateShow_Text(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	file := writeState(t, `{"bookmarks":{"projects":{"modified_at":"2024-01-02T00:00:00Z"}}}`)
	_, _, err := execute("state", "import", file, "--db", dbPath)
	require.NoError(t, err)

	stdout, _, err := execute("state", "show", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "STREAM")
	assert.Contains(t, stdout, "projects")
	assert.Contains(t, stdout, "2024-01-02T00:00:00Z")
}
