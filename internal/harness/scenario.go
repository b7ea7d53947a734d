package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/asanatap/internal/engine"
	"github.com/roach88/asanatap/internal/source"
)

// Scenario defines a replication scenario: a fake Asana tree, injected
// failures, one or more sync runs against it, and assertions on the
// resulting trace and store.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// StartDate is the watermark of streams never committed (RFC 3339).
	StartDate string `yaml:"start_date"`

	// PageSize splits every collection into pages. Zero means one page.
	PageSize int `yaml:"page_size,omitempty"`

	// MaxCalls is the watchdog call budget. Zero uses the default.
	MaxCalls int `yaml:"max_calls,omitempty"`

	// RefreshFailsAfter makes every refresh after the first N fail.
	// Nil means refreshes always succeed.
	RefreshFailsAfter *int `yaml:"refresh_fails_after,omitempty"`

	// Watermarks are committed before the first run.
	Watermarks map[string]string `yaml:"watermarks,omitempty"`

	Tree Tree `yaml:"tree"`

	Failures []Failure `yaml:"failures,omitempty"`

	// Runs are executed in order against the same store.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate the final trace and state.
	// Supported types: emitted, emitted_count, watermark, run_status, refreshes
	Assertions []Assertion `yaml:"assertions"`
}

// Tree is the content of the fake Asana. Collections are keyed by their
// scoping id, as in testutil.FakeSource.
type Tree struct {
	Workspaces []string                    `yaml:"workspaces"`
	Projects   map[string][]map[string]any `yaml:"projects,omitempty"`
	Tags       map[string][]map[string]any `yaml:"tags,omitempty"`
	Tasks      map[string][]map[string]any `yaml:"tasks,omitempty"`
	Subtasks   map[string][]map[string]any `yaml:"subtasks,omitempty"`

	// Records back single-record fetches, keyed by their gid.
	Records []map[string]any `yaml:"records,omitempty"`
}

// Failure injects a fetch error for the next Times calls of Op.
type Failure struct {
	// Op is the request without the method, e.g. "tasks/t1/subtasks".
	Op string `yaml:"op"`

	// Kind is one of transient, auth_expired, not_found, fatal.
	Kind string `yaml:"kind"`

	// Times is the number of calls to fail; -1 fails forever.
	Times int `yaml:"times"`
}

// RunStep is one sync invocation.
type RunStep struct {
	// Streams to sync in order. Empty means the whole catalog.
	Streams []string `yaml:"streams,omitempty"`

	// ExpectError is a substring of the expected sync error. Empty means
	// the run must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "emitted": records of Stream were emitted exactly as IDs, in order
	// - "emitted_count": record ID of Stream was emitted Count times
	// - "watermark": the committed watermark of Stream is Value
	// - "run_status": the last pass of Stream ended with Status
	// - "refreshes": the credential was refreshed Count times
	Type string `yaml:"type"`

	Stream string `yaml:"stream,omitempty"`

	// Run restricts emitted to one run (1-based). Zero means all runs.
	Run int `yaml:"run,omitempty"`

	IDs []string `yaml:"ids,omitempty"`

	ID string `yaml:"id,omitempty"`

	Count int `yaml:"count,omitempty"`

	// Value is an RFC 3339 time, or empty to assert nothing is committed.
	Value string `yaml:"value,omitempty"`

	Status string `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertEmitted      = "emitted"
	AssertEmittedCount = "emitted_count"
	AssertWatermark    = "watermark"
	AssertRunStatus    = "run_status"
	AssertRefreshes    = "refreshes"
)

var failureKinds = map[string]source.Kind{
	source.KindTransient.String():   source.KindTransient,
	source.KindAuthExpired.String(): source.KindAuthExpired,
	source.KindNotFound.String():    source.KindNotFound,
	source.KindFatal.String():       source.KindFatal,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict fields catch typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := time.Parse(time.RFC3339, s.StartDate); err != nil {
		return fmt.Errorf("start_date: %w", err)
	}
	if s.PageSize < 0 {
		return fmt.Errorf("page_size must be non-negative")
	}
	if s.MaxCalls < 0 {
		return fmt.Errorf("max_calls must be non-negative")
	}
	if s.RefreshFailsAfter != nil && *s.RefreshFailsAfter < 0 {
		return fmt.Errorf("refresh_fails_after must be non-negative")
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for stream, value := range s.Watermarks {
		if _, ok := engine.Lookup(stream); !ok {
			return fmt.Errorf("watermarks: unknown stream %q", stream)
		}
		if _, err := time.Parse(time.RFC3339, value); err != nil {
			return fmt.Errorf("watermarks.%s: %w", stream, err)
		}
	}

	for i, rec := range s.Tree.Records {
		if id, _ := rec["gid"].(string); id == "" {
			return fmt.Errorf("tree.records[%d]: gid is required", i)
		}
	}

	for i, f := range s.Failures {
		if f.Op == "" {
			return fmt.Errorf("failures[%d]: op is required", i)
		}
		if _, ok := failureKinds[f.Kind]; !ok {
			return fmt.Errorf("failures[%d]: unknown kind %q", i, f.Kind)
		}
		if f.Times == 0 || f.Times < -1 {
			return fmt.Errorf("failures[%d]: times must be positive or -1", i)
		}
	}

	for i, run := range s.Runs {
		for _, name := range run.Streams {
			if _, ok := engine.Lookup(name); !ok {
				return fmt.Errorf("runs[%d]: unknown stream %q", i, name)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, len(s.Runs)); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, runs int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertEmitted, AssertEmittedCount, AssertWatermark, AssertRunStatus:
		if _, ok := engine.Lookup(a.Stream); !ok {
			return fmt.Errorf("assertions[%d]: unknown stream %q for %s", index, a.Stream, a.Type)
		}
	case AssertRefreshes:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	switch a.Type {
	case AssertEmitted:
		if a.Run < 0 || a.Run > runs {
			return fmt.Errorf("assertions[%d]: run %d out of range", index, a.Run)
		}
	case AssertEmittedCount:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for emitted_count", index)
		}
	case AssertWatermark:
		if a.Value != "" {
			if _, err := time.Parse(time.RFC3339, a.Value); err != nil {
				return fmt.Errorf("assertions[%d]: value: %w", index, err)
			}
		}
	case AssertRunStatus:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for run_status", index)
		}
	}
	return nil
}
