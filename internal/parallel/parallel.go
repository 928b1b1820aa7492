// Package parallel provides bounded, cancelable fan-out for independent engine calls.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether sibling work may run concurrently.
	NumWorkers int  // Maximum concurrent goroutines. 0 = unbounded.
}

// DefaultConfig returns sensible defaults based on CPU count.
//
// Work items are network-bound engine calls, so the bound is generous.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		NumWorkers: 4 * runtime.NumCPU(),
	}
}

// Sequential returns a Config that runs every item on the calling goroutine.
func Sequential() Config {
	return Config{Enabled: false}
}

// Run executes f(ctx, i) for i in [0, n) and waits for all of them.
//
// The first error cancels the context handed to the remaining items and is
// returned as-is. With parallelism disabled, or a single item, items run in
// order on the calling goroutine and stop at the first error.
func Run(ctx context.Context, n int, f func(ctx context.Context, i int) error, cfg Config) error {
	if !cfg.Enabled || n < 2 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := f(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	if cfg.NumWorkers > 0 {
		g.SetLimit(cfg.NumWorkers)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			return f(gCtx, i)
		})
	}
	return g.Wait()
}
