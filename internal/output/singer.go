package output

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/roach88/asanatap/internal/engine"
	"github.com/roach88/asanatap/internal/source"
)

// Message types.
const (
	TypeRecord = "RECORD"
	TypeState  = "STATE"
)

// Bookmarks maps stream name to replication key to committed value.
type Bookmarks map[string]map[string]string

// Writer emits Singer messages. It implements engine.Emitter.
//
// Thread-safety: Writer is safe for concurrent use via internal mutex;
// lines are never interleaved.
type Writer struct {
	mu        sync.Mutex
	w         io.Writer
	now       func() time.Time
	bookmarks Bookmarks
}

var _ engine.Emitter = (*Writer)(nil)

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithNow sets the clock used for time_extracted.
func WithNow(now func() time.Time) WriterOption {
	return func(w *Writer) {
		w.now = now
	}
}

// WithBookmarks seeds the bookmarks carried by STATE messages, so a
// partial sync still reports every stream's position.
func WithBookmarks(b Bookmarks) WriterOption {
	return func(w *Writer) {
		for stream, keys := range b {
			for key, value := range keys {
				w.bookmark(stream, key, value)
			}
		}
	}
}

// NewWriter creates a writer on w.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	wr := &Writer{
		w:         w,
		now:       time.Now,
		bookmarks: Bookmarks{},
	}
	for _, opt := range opts {
		opt(wr)
	}
	return wr
}

// Record writes one RECORD message.
func (w *Writer) Record(stream engine.Stream, rec source.Record) error {
	body, err := Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s record %s: %w", stream.Name, rec.ID(), err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var line bytes.Buffer
	line.WriteString(`{"type":"RECORD","stream":`)
	if err := encodeString(&line, stream.Name); err != nil {
		return err
	}
	line.WriteString(`,"record":`)
	line.Write(body)
	line.WriteString(`,"time_extracted":`)
	if err := encodeString(&line, formatTime(w.now())); err != nil {
		return err
	}
	line.WriteString("}\n")

	_, err = w.w.Write(line.Bytes())
	return err
}

// Commit records the stream's new watermark and writes a STATE message
// carrying every bookmark known so far.
func (w *Writer) Commit(stream engine.Stream, watermark time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.bookmark(stream.Name, stream.ReplicationKey, formatTime(watermark))
	return w.writeState()
}

// Bookmarks returns a copy of the current bookmarks.
func (w *Writer) Bookmarks() Bookmarks {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(Bookmarks, len(w.bookmarks))
	for stream, keys := range w.bookmarks {
		out[stream] = make(map[string]string, len(keys))
		for k, v := range keys {
			out[stream][k] = v
		}
	}
	return out
}

func (w *Writer) bookmark(stream, key, value string) {
	if w.bookmarks[stream] == nil {
		w.bookmarks[stream] = map[string]string{}
	}
	w.bookmarks[stream][key] = value
}

func (w *Writer) writeState() error {
	value, err := Marshal(map[string]any{"bookmarks": w.bookmarks.toAny()})
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	var line bytes.Buffer
	line.WriteString(`{"type":"STATE","value":`)
	line.Write(value)
	line.WriteString("}\n")

	_, err = w.w.Write(line.Bytes())
	return err
}

func (b Bookmarks) toAny() map[string]any {
	out := make(map[string]any, len(b))
	for stream, keys := range b {
		out[stream] = keys
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
