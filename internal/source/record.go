package source

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// IDField is the unique identifier field on every Asana record.
const IDField = "gid"

// Record is an opaque record as returned by the API.
//
// Numbers are kept as json.Number when the record is decoded by the HTTP
// client so pass-through values survive unchanged.
type Record map[string]any

// ID returns the record identifier, or "" if absent.
func (r Record) ID() string {
	switch v := r[IDField].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Time parses the named field as an RFC 3339 timestamp.
// Returns ok=false if the field is missing, null, or not a timestamp.
func (r Record) Time(field string) (t time.Time, ok bool) {
	s, isString := r[field].(string)
	if !isString || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Int reads the named field as an integer. Missing or malformed values
// report ok=false.
func (r Record) Int(field string) (n int64, ok bool) {
	switch v := r[field].(type) {
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Has reports whether the field is present (even if null).
func (r Record) Has(field string) bool {
	_, ok := r[field]
	return ok
}
