// Package workpool runs independent jobs on a bounded set of goroutines.
package workpool

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Map applies fn to every item using at most workers goroutines and returns
// the results in input order, regardless of completion order. The first error
// cancels the context handed to the remaining jobs and is returned; no partial
// results are returned in that case. workers <= 0 means no limit.
func Map[T, R any](
	ctx context.Context,
	workers int,
	items []T,
	fn func(ctx context.Context, index int, item T) (R, error),
) ([]R, error) {
	results := make([]R, len(items))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, i, item)
			if err != nil {
				return errors.Wrapf(err, "job %d", i)
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
