package engine

import (
	"context"
	"iter"

	"github.com/roach88/asanatap/internal/source"
)

// paginate lazily yields every record of a collection, fetching one page
// per watchdog call. On the first error it yields (nil, err) and stops.
func paginate(ctx context.Context, wd *Watchdog, src source.Source, req source.ListRequest) iter.Seq2[source.Record, error] {
	return func(yield func(source.Record, error) bool) {
		offset := ""
		for {
			var page source.Page
			err := wd.Call(ctx, func(ctx context.Context) error {
				var err error
				page, err = src.List(ctx, req.WithOffset(offset))
				return err
			})
			if err != nil {
				yield(nil, err)
				return
			}
			for _, rec := range page.Records {
				if !yield(rec, nil) {
					return
				}
			}
			if page.NextOffset == "" || page.NextOffset == offset {
				return
			}
			offset = page.NextOffset
		}
	}
}

// fetchOne re-fetches a single record under the watchdog.
func fetchOne(ctx context.Context, wd *Watchdog, src source.Source, resource, id string, fields []string) (source.Record, error) {
	var rec source.Record
	err := wd.Call(ctx, func(ctx context.Context) error {
		var err error
		rec, err = src.Get(ctx, resource, id, fields)
		return err
	})
	return rec, err
}
