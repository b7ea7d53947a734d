package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/roach88/asanatap/internal/engine"
)

// ErrNoState is returned by ParseState when the input holds no state.
var ErrNoState = errors.New("no state found")

type stateValue struct {
	Bookmarks Bookmarks `json:"bookmarks"`
}

type message struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// ParseState reads a Singer state and returns the watermark per stream.
//
// The input may be a bare state value ({"bookmarks": ...}), a single
// STATE message, or a whole message stream, in which case the last STATE
// message wins. Each bookmark is read under its stream's
// replication key; streams not in the catalog are rejected.
func ParseState(r io.Reader) (map[string]time.Time, error) {
	var last *stateValue

	dec := json.NewDecoder(r)
	for n := 1; ; n++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("value %d: %w", n, err)
		}

		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("value %d: %w", n, err)
		}
		switch msg.Type {
		case TypeState:
			var v stateValue
			if err := json.Unmarshal(msg.Value, &v); err != nil {
				return nil, fmt.Errorf("value %d: state value: %w", n, err)
			}
			last = &v
		case "":
			var v stateValue
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("value %d: %w", n, err)
			}
			if v.Bookmarks != nil {
				last = &v
			}
		}
	}
	if last == nil {
		return nil, ErrNoState
	}
	return last.watermarks()
}

func (v *stateValue) watermarks() (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(v.Bookmarks))
	for name, keys := range v.Bookmarks {
		stream, ok := engine.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown stream %q in state", name)
		}
		raw, ok := keys[stream.ReplicationKey]
		if !ok {
			return nil, fmt.Errorf("stream %s: bookmark has no %s", name, stream.ReplicationKey)
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}
