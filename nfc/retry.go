package nfc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

// RetryPolicy bounds how often an operation is attempted. Every failure
// counts against MaxAttempts, whatever its cause.
type RetryPolicy struct {
	MaxAttempts int
	// Backoff spaces attempts; nil retries immediately.
	Backoff backoff.BackOff
}

// DefaultRetryPolicy is three attempts with no delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts}
}

// NewBackOff builds a backoff by name: "none", "constant" or
// "exponential". delay is the constant interval or the initial interval.
func NewBackOff(kind string, delay time.Duration) (backoff.BackOff, error) {
	switch strings.ToLower(kind) {
	case "", "none":
		return nil, nil
	case "constant":
		return backoff.NewConstantBackOff(delay), nil
	case "exponential":
		b := backoff.NewExponentialBackOff()
		if delay > 0 {
			b.InitialInterval = delay
		}
		b.MaxElapsedTime = 0
		return b, nil
	}
	return nil, fmt.Errorf("unknown backoff %q", kind)
}

// RetryError is returned by Do once the attempt budget is spent. Err is the
// last attempt's error.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("gave up after %s: %v", attemptCount(e.Attempts), e.Err)
}

// attemptCount formats n with a singular or plural noun.
func attemptCount(n int) string {
	if n == 1 {
		return "1 attempt"
	}
	return fmt.Sprintf("%d attempts", n)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// Do runs op until it succeeds or the budget is spent. attempt is 1-based.
// onFailure, if set, sees every failed attempt. It returns the number of
// attempts made. A context cancelled between attempts stops the loop with
// the context's error.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error, onFailure func(attempt int, err error)) (int, error) {
	limit := p.MaxAttempts
	if limit < 1 {
		limit = 1
	}
	if p.Backoff != nil {
		p.Backoff.Reset()
	}

	var last error
	for attempt := 1; attempt <= limit; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		last = op(ctx, attempt)
		if last == nil {
			return attempt, nil
		}
		if onFailure != nil {
			onFailure(attempt, last)
		}
		if attempt == limit || p.Backoff == nil {
			continue
		}

		wait := p.Backoff.NextBackOff()
		if wait == backoff.Stop {
			return attempt, &RetryError{Attempts: attempt, Err: last}
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return limit, &RetryError{Attempts: limit, Err: last}
}
