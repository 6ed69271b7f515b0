// Package poll implements the fixed-budget polling used to wait for page state.
package poll

import (
	"context"
	"time"
)

// Condition reports whether the awaited state has been reached. attempt is
// 1-based.
type Condition func(ctx context.Context, attempt int) (bool, error)

// Until evaluates cond up to attempts times, sleeping interval between
// evaluations. It returns true on the first satisfied evaluation and false
// once the budget is spent. Errors from cond count as "not yet"; the last one
// is returned alongside false. Only context cancellation aborts early.
func Until(ctx context.Context, attempts int, interval time.Duration, cond Condition) (bool, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		ok, err := cond(ctx, i)
		if err == nil && ok {
			return true, nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			lastErr = err
		}

		if i < attempts {
			if err := Sleep(ctx, interval); err != nil {
				return false, err
			}
		}
	}
	return false, lastErr
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
