package engine

import (
	"time"

	"github.com/roach88/asanatap/internal/source"
)

// Advance returns max(session, candidate). It is pure and is called once
// per observed record, emitted or not.
func Advance(session, candidate time.Time) time.Time {
	if candidate.After(session) {
		return candidate
	}
	return session
}

// ShouldEmit reports whether rec is newer than the committed watermark.
//
// The boundary is exclusive: a replication key equal to the watermark was
// already delivered by the pass that committed it. A record whose key is
// missing or unparseable cannot be proven old and is emitted.
func ShouldEmit(rec source.Record, replicationKey string, committed time.Time) bool {
	t, ok := rec.Time(replicationKey)
	if !ok {
		return true
	}
	return t.After(committed)
}
