package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/asanatap/internal/source"
)

// Marshal produces canonical JSON for a decoded API value.
//
// Differences from json.Marshal:
//   - object keys sorted by UTF-16 code units
//   - no HTML escaping, and U+2028/U+2029 are written literally
//   - json.Number is written verbatim after validation
//
// String content is passed through untouched, so records leave the tap
// byte for byte as the API sent them. Records may carry nulls and
// non-integral numbers; both are allowed.
func Marshal(v any) ([]byte, error) {
	return encoder{}.marshal(v)
}

// MarshalNFC is Marshal with every string, keys included, NFC normalized
// before sorting. Two keys that normalize to the same string are an
// error. Used for rendering that must not depend on how an editor stored
// composed characters, such as golden traces.
func MarshalNFC(v any) ([]byte, error) {
	return encoder{nfc: true}.marshal(v)
}

type encoder struct {
	nfc bool
}

func (e encoder) marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e encoder) str(s string) string {
	if e.nfc {
		return norm.NFC.String(s)
	}
	return s
}

func (e encoder) encode(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case string:
		return encodeString(buf, e.str(val))
	case json.Number:
		if !json.Valid([]byte(val)) {
			return fmt.Errorf("invalid number %q", string(val))
		}
		buf.WriteString(string(val))
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("unsupported number %v", val)
		}
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case time.Time:
		return encodeString(buf, val.UTC().Format(time.RFC3339Nano))
	case []string:
		buf.WriteByte('[')
		for i, s := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, e.str(s)); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(buf, elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case source.Record:
		return e.encodeObject(buf, val)
	case map[string]any:
		return e.encodeObject(buf, val)
	case map[string]string:
		obj := make(map[string]any, len(val))
		for k, s := range val {
			obj[k] = s
		}
		return e.encodeObject(buf, obj)
	default:
		return fmt.Errorf("unsupported type %T", v)
	}
	return nil
}

func (e encoder) encodeObject(buf *bytes.Buffer, obj map[string]any) error {
	// Sorting happens on the written form of each key.
	written := make(map[string]string, len(obj))
	keys := make([]string, 0, len(obj))
	for k := range obj {
		wk := e.str(k)
		if prev, dup := written[wk]; dup {
			return fmt.Errorf("keys %q and %q are equal after normalization", prev, k)
		}
		written[wk] = k
		keys = append(keys, wk)
	}
	slices.SortFunc(keys, compareUTF16)

	buf.WriteByte('{')
	for i, wk := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeString(buf, wk); err != nil {
			return err
		}
		buf.WriteByte(':')
		k := written[wk]
		if err := e.encode(buf, obj[k]); err != nil {
			return fmt.Errorf("%q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// compareUTF16 orders strings by UTF-16 code units. Byte order differs
// for characters above U+FFFF versus U+E000..U+FFFF.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// encodeString writes s as a JSON string without altering its content.
func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators rewrites the \u2028 and \u2029 escapes that
// encoding/json always emits back to literal characters. Every backslash
// in encoder output starts an escape sequence, so a left-to-right scan
// never mistakes an escaped backslash followed by "u2028" for an escape.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if data[i+1] == 'u' && i+6 <= len(data) {
			switch string(data[i+2 : i+6]) {
			case "2028":
				out = append(out, "\u2028"...)
				i += 5
				continue
			case "2029":
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}
