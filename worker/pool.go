// Package worker provides a small bounded-concurrency helper used to fan
// out independent, per-item jobs (a media directive fetch) without ever
// running more than a fixed number at once.
package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// MapBounded runs fn once per item in items, capping the number of
// in-flight goroutines at limit (limit <= 0 means unbounded), and returns
// one result per item in the same order as items. Each goroutine only ever
// writes to its own result slot, so there is no shared mutable state across
// goroutines — the same invariant the publication hierarchy resolver relies
// on for its own per-level fan-out. fn is expected to honor ctx's deadline
// itself; one item failing never cancels or blocks any other item.
func MapBounded[T, R any](ctx context.Context, limit int, items []T, fn func(context.Context, T) R) []R {
	results := make([]R, len(items))
	g := new(errgroup.Group)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			results[i] = fn(ctx, item)
			return nil
		})
	}
	g.Wait()
	return results
}
