package eval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/tally/internal/value"
)

// RunAll evaluates the program once per input, in parallel, and returns the
// results in input order. The first failure cancels the remaining runs and
// is returned wrapped with its input index.
func (e *Evaluator) RunAll(ctx context.Context, inputs []value.Value, globals map[string]value.Value) ([]value.Value, error) {
	results := make([]value.Value, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, in := range inputs {
		g.Go(func() error {
			out, err := e.Run(gctx, in, globals)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
