package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/asanatap/internal/source"
)

// Emitter is the downstream consumer: records in emission order, then one
// commit event per stream after that stream's watermark is persisted.
type Emitter interface {
	Record(stream Stream, rec source.Record) error
	Commit(stream Stream, watermark time.Time) error
}

// Sync runs one pass per stream, in order. The first failing stream stops
// the sync; streams that already committed stay committed.
func (d *Driver) Sync(ctx context.Context, streams []Stream, out Emitter) ([]PassResult, error) {
	results := make([]PassResult, 0, len(streams))

	for _, stream := range streams {
		pass := d.NewPass(stream)

		var sinkErr error
		for rec, err := range pass.Records(ctx) {
			if err != nil {
				results = append(results, pass.Result())
				return results, err
			}
			if sinkErr = out.Record(stream, rec); sinkErr != nil {
				break
			}
		}

		res := pass.Result()
		results = append(results, res)
		if sinkErr != nil {
			return results, fmt.Errorf("emit %s record: %w", stream.Name, sinkErr)
		}
		if err := out.Commit(stream, res.Session); err != nil {
			return results, fmt.Errorf("emit %s state: %w", stream.Name, err)
		}
	}
	return results, nil
}
