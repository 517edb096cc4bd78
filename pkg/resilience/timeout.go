package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/quote-search/pkg/errors"
)

// TimeoutError reports that an operation outlived its limit. It matches both
// apperrors.ErrTimeout and context.DeadlineExceeded under errors.Is.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %v after %v", e.Op, apperrors.ErrTimeout, e.Limit)
}

func (e *TimeoutError) Unwrap() []error {
	return []error{apperrors.ErrTimeout, context.DeadlineExceeded}
}

// WithTimeout runs fn under a context that expires after timeout and returns
// as soon as either fn finishes or the limit passes; fn is not waited for
// after that. A non-positive timeout calls fn directly. Cancellation of ctx
// itself is reported as ctx.Err(), not as a timeout.
func WithTimeout(ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) && timeoutCtx.Err() != nil && ctx.Err() == nil {
			return &TimeoutError{Op: op, Limit: timeout}
		}
		return err
	case <-timeoutCtx.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return &TimeoutError{Op: op, Limit: timeout}
	}
}
