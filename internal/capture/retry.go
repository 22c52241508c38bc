package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// RetryPolicy decides how many consecutive failed reads are tolerated.
// The zero value retries forever.
type RetryPolicy struct {
	budget int
}

// RetryForever retries failed reads on the same source indefinitely.
func RetryForever() RetryPolicy {
	return RetryPolicy{}
}

// RetryBudget gives up after n consecutive failed reads. n <= 0 retries forever.
func RetryBudget(n int) RetryPolicy {
	if n < 0 {
		n = 0
	}
	return RetryPolicy{budget: n}
}

// Forever reports whether the policy never gives up.
func (p RetryPolicy) Forever() bool {
	return p.budget == 0
}

// Budget returns the number of tolerated consecutive failures, 0 for forever.
func (p RetryPolicy) Budget() int {
	return p.budget
}

func (p RetryPolicy) String() string {
	if p.Forever() {
		return "forever"
	}
	return fmt.Sprintf("budget(%d)", p.budget)
}

// ReadWithRetry reads the next frame, retrying transient failures on the same
// source without delay. onFail, if set, is called with the consecutive failure
// count and the error after each failed read. io.EOF, ErrClosed and context
// errors are returned immediately. When the budget runs out the result wraps
// ErrSourceLost.
func ReadWithRetry(ctx context.Context, src Source, policy RetryPolicy, onFail func(attempt int, err error)) (*Frame, error) {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := src.Read(ctx)
		if err == nil {
			return frame, nil
		}
		if errors.Is(err, io.EOF) || errors.Is(err, ErrClosed) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		failures++
		if onFail != nil {
			onFail(failures, err)
		}
		if !policy.Forever() && failures >= policy.budget {
			return nil, fmt.Errorf("%w: %s after %d failed reads: %v", ErrSourceLost, src.ID(), failures, err)
		}
	}
}
