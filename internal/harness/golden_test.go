package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalTrace(t *testing.T) {
	out, err := MarshalTrace("demo", []TraceEvent{
		{Seq: 1, Kind: EventCall, Detail: "GET projects?archived=false&workspace=w1"},
		{Seq: 2, Kind: EventEmit, Detail: "tasks \"quoted\""},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario":"demo"}`+"\n"+
			`{"detail":"GET projects?archived=false&workspace=w1","kind":"call","seq":1}`+"\n"+
			`{"detail":"tasks \"quoted\"","kind":"emit","seq":2}`+"\n",
		string(out))
}

func TestMarshalTrace_Empty(t *testing.T) {
	out, err := MarshalTrace("empty", nil)
	require.NoError(t, err)
	assert.Equal(t, "{\"scenario\":\"empty\"}\n", string(out))
}

func TestMarshalTrace_NormalizesComposedCharacters(t *testing.T) {
	decomposed, err := MarshalTrace("cafe\u0301", []TraceEvent{{Seq: 1, Kind: EventEmit, Detail: "tags cafe\u0301"}})
	require.NoError(t, err)
	composed, err := MarshalTrace("caf\u00e9", []TraceEvent{{Seq: 1, Kind: EventEmit, Detail: "tags caf\u00e9"}})
	require.NoError(t, err)
	assert.Equal(t, string(composed), string(decomposed))
}

func TestAssertGolden_ReusesResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/refresh_failure.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.NoError(t, AssertGolden(t, scenario.Name, result))
}
