package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	dErrors "strand/pkg/domain-errors"
	"strand/pkg/platform/sentinel"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes int32
	Errors    int32
	Conflicts int32
	NotFounds int32
	Replays   int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Errors + r.Conflicts + r.NotFounds + r.Replays
}

// RunConcurrent executes fn in parallel goroutines and collects results.
// Errors are categorized by sentinel or domain code: conflict, not_found,
// replay (already used) or generic error.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var wg sync.WaitGroup
	var successes, errs, conflicts, notFounds, replays atomic.Int32

	for i := range goroutines {
		wg.Go(func() {
			err := fn(i)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
				notFounds.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed), dErrors.HasCode(err, dErrors.CodeReplayDetected):
				replays.Add(1)
			default:
				errs.Add(1)
			}
		})
	}

	wg.Wait()

	return &ConcurrentResult{
		Successes: successes.Load(),
		Errors:    errs.Load(),
		Conflicts: conflicts.Load(),
		NotFounds: notFounds.Load(),
		Replays:   replays.Load(),
	}
}

// RunConcurrentCtx executes fn in parallel goroutines with context support.
func RunConcurrentCtx(ctx context.Context, goroutines int, fn func(ctx context.Context, idx int) error) *ConcurrentResult {
	return RunConcurrent(goroutines, func(idx int) error {
		return fn(ctx, idx)
	})
}

// RunConcurrentCollect executes fn in parallel and collects all errors.
func RunConcurrentCollect(goroutines int, fn func(idx int) error) (successes int32, errs []error) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var successCount atomic.Int32
	collectedErrs := make([]error, 0)

	for i := range goroutines {
		wg.Go(func() {
			if err := fn(i); err != nil {
				mu.Lock()
				collectedErrs = append(collectedErrs, err)
				mu.Unlock()
			} else {
				successCount.Add(1)
			}
		})
	}

	wg.Wait()
	return successCount.Load(), collectedErrs
}
