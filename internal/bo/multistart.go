package bo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// StartResult is the outcome of one loop in a multi-start run.
type StartResult struct {
	Result *Result
	Err    error
}

// MultiStart builds n independent loops with build and runs them
// concurrently. Each loop must own its evaluator and surrogate. It returns
// the best result over all starts together with every start's outcome. The
// error is non-nil when a loop could not be built or no start found an
// incumbent.
func MultiStart(ctx context.Context, n int, build func(start int) (*Loop, error)) (*Result, []StartResult, error) {
	if n < 1 {
		return nil, nil, fmt.Errorf("multi-start needs n >= 1, got %d", n)
	}

	loops := make([]*Loop, n)
	for i := range loops {
		l, err := build(i)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build start %d: %w", i, err)
		}
		loops[i] = l
	}

	runs := make([]StartResult, n)
	var g errgroup.Group
	for i, l := range loops {
		g.Go(func() error {
			res, err := l.Run(ctx)
			runs[i] = StartResult{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var best *Result
	var errs []error
	for i, r := range runs {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("start %d: %w", i, r.Err))
		}
		if r.Result == nil || !r.Result.HasIncumbent() {
			continue
		}
		if best == nil || r.Result.BestValue < best.BestValue {
			best = r.Result
		}
	}

	if best == nil {
		return nil, runs, errors.Join(append([]error{errors.New("no start produced an incumbent")}, errs...)...)
	}
	slog.Info("Multi-start finished", "starts", n, "best", best.BestValue, "failed", len(errs))
	return best, runs, nil
}
