package output

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asanatap/internal/source"
)

func TestMarshal_Scalars(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"null", nil, "null"},
		{"true", true, "true"},
		{"string", "hello", `"hello"`},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"json number", json.Number("12.50"), "12.50"},
		{"float", 1.5, "1.5"},
		{"time", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), `"2024-01-02T03:04:05Z"`},
		{"strings", []string{"b", "a"}, `["b","a"]`},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestMarshal_SortedNestedKeys(t *testing.T) {
	rec := source.Record{
		"name": "Write docs",
		"gid":  "1",
		"assignee": map[string]any{
			"name": "Ada",
			"gid":  "7",
		},
		"tags":   []any{map[string]any{"z": 1, "a": nil}},
		"parent": nil,
	}

	got, err := Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t,
		`{"assignee":{"gid":"7","name":"Ada"},"gid":"1","name":"Write docs","parent":null,"tags":[{"a":null,"z":1}]}`,
		string(got))
}

func TestMarshal_UTF16KeyOrder(t *testing.T) {
	// U+10000 encodes as a surrogate pair (0xD800...), which sorts before
	// U+E000 in UTF-16 but after it in UTF-8.
	obj := map[string]any{
		"\uE000":     1,
		"\U00010000": 2,
	}

	got, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(got))
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	got, err := Marshal("<a href=\"x\">&</a>")
	require.NoError(t, err)
	assert.Equal(t, `"<a href=\"x\">&</a>"`, string(got))
}

func TestMarshal_StringsPassThrough(t *testing.T) {
	// Decomposed and precomposed forms are distinct keys and values.
	rec := source.Record{
		"gid":     "1",
		"name":    "Cafe\u0301",
		"e\u0301": 1,
		"\u00e9":  2,
	}

	got, err := Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, "{\"e\u0301\":1,\"gid\":\"1\",\"name\":\"Cafe\u0301\",\"\u00e9\":2}", string(got))
}

func TestMarshalNFC(t *testing.T) {
	decomposed := "cafe\u0301"
	got, err := MarshalNFC(map[string]any{decomposed: decomposed, "tags": []string{decomposed}})
	require.NoError(t, err)
	assert.Equal(t, "{\"caf\u00e9\":\"caf\u00e9\",\"tags\":[\"caf\u00e9\"]}", string(got))
}

func TestMarshalNFC_SortsNormalizedKeys(t *testing.T) {
	// "e\u0301" sorts before "f" raw but becomes "\u00e9", which sorts after.
	got, err := MarshalNFC(map[string]any{"e\u0301": 1, "f": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"f\":2,\"\u00e9\":1}", string(got))
}

func TestMarshalNFC_CollidingKeys(t *testing.T) {
	_, err := MarshalNFC(map[string]any{"e\u0301": 1, "\u00e9": 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "equal after normalization")
}

func TestMarshal_LineSeparators(t *testing.T) {
	ls := string(rune(0x2028))
	ps := string(rune(0x2029))

	got, err := Marshal("a" + ls + "b" + ps + "c")
	require.NoError(t, err)
	assert.Equal(t, `"a`+ls+`b`+ps+`c"`, string(got))

	// A literal backslash followed by the text u2028 stays escaped.
	got, err = Marshal(`\u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(got))
}

func TestMarshal_Errors(t *testing.T) {
	_, err := Marshal(json.Number("1e"))
	assert.Error(t, err)

	_, err = Marshal(map[string]any{"bad": struct{}{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bad"`)
}
