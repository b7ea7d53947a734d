package cli

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeAsana serves a one-workspace tree. Requests to failPath get a 500.
func fakeAsana(t *testing.T, failPath string) *httptest.Server {
	t.Helper()
	data := map[string]string{
		"/workspaces":        `[{"gid":"w1","name":"Acme"}]`,
		"/projects":          `[{"gid":"p1","name":"Launch","modified_at":"2024-01-02T00:00:00.000Z","archived":false}]`,
		"/tags":              `[{"gid":"g1","name":"urgent","created_at":"2024-01-03T00:00:00.000Z"}]`,
		"/tasks":             `[{"gid":"t1","name":"Plan","modified_at":"2024-01-04T00:00:00.000Z","num_subtasks":1}]`,
		"/tasks/t1/subtasks": `[{"gid":"s1","name":"Draft","modified_at":"2024-01-05T00:00:00.000Z","num_subtasks":0}]`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer pat" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"errors":[{"message":"Not Authorized"}]}`)
			return
		}
		if r.URL.Path == failPath {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"errors":[{"message":"boom"}]}`)
			return
		}
		body, ok := data[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"errors":[{"message":"Unknown object"}]}`)
			return
		}
		fmt.Fprintf(w, `{"data":%s,"next_page":null}`, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig writes a config for baseURL and returns its path and the
// database path it names.
func writeConfig(t *testing.T, baseURL string) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "state.db")
	cfgPath = filepath.Join(dir, "asanatap.yaml")
	cfg := fmt.Sprintf(`start_date: "2023-01-01T00:00:00Z"
database: %s
auth:
  access_token: pat
api:
  base_url: %s
`, dbPath, baseURL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cfgPath, dbPath
}

// execute runs the root command and returns stdout, stderr and the error.
func execute(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
