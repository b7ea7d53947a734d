package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/asanatap/internal/source"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t.Fatalf("bad time %q: %v", s, err)
	}
	return v
}

func TestAdvance_Monotonic(t *testing.T) {
	inputs := []string{
		"2024-01-05T00:00:00Z",
		"2024-01-02T00:00:00Z",
		"2024-01-07T00:00:00Z",
		"2023-12-31T00:00:00Z",
		"2024-01-07T00:00:00Z",
	}

	session := mustTime(t, "2024-01-01T00:00:00Z")
	prev := session
	for _, in := range inputs {
		session = Advance(session, mustTime(t, in))
		assert.False(t, session.Before(prev), "session regressed to %s", session)
		prev = session
	}
	assert.True(t, session.Equal(mustTime(t, "2024-01-07T00:00:00Z")))
}

func TestShouldEmit_ExclusiveBoundary(t *testing.T) {
	committed := mustTime(t, "2024-01-01T00:00:00Z")

	tests := []struct {
		name string
		rec  source.Record
		want bool
	}{
		{"older", source.Record{"modified_at": "2023-12-31T23:59:59Z"}, false},
		{"equal", source.Record{"modified_at": "2024-01-01T00:00:00Z"}, false},
		{"equal other offset", source.Record{"modified_at": "2024-01-01T01:00:00+01:00"}, false},
		{"newer by 1ms", source.Record{"modified_at": "2024-01-01T00:00:00.001Z"}, true},
		{"missing key", source.Record{"gid": "1"}, true},
		{"unparseable key", source.Record{"modified_at": "soon"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldEmit(tt.rec, "modified_at", committed))
		})
	}
}

func TestVisited(t *testing.T) {
	v := NewVisited()
	assert.True(t, v.Mark("a"))
	assert.False(t, v.Mark("a"))
	assert.True(t, v.Mark("b"))
	assert.Equal(t, 2, v.Len())
}
