package nfc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyDo(t *testing.T) {
	tests := []struct {
		name         string
		failures     int
		maxAttempts  int
		wantAttempts int
		wantErr      bool
	}{
		{"first try", 0, 3, 1, false},
		{"two failures", 2, 3, 3, false},
		{"exhausted", 3, 3, 3, true},
		{"single attempt", 1, 1, 1, true},
		{"zero budget means one", 0, 0, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var failed []int
			attempts, err := RetryPolicy{MaxAttempts: tt.maxAttempts}.Do(context.Background(),
				func(_ context.Context, attempt int) error {
					if attempt <= tt.failures {
						return errors.New("fail")
					}
					return nil
				},
				func(attempt int, _ error) { failed = append(failed, attempt) })

			assert.Equal(t, tt.wantAttempts, attempts)
			assert.Equal(t, tt.wantErr, err != nil)
			if tt.failures > 0 {
				assert.Equal(t, 1, failed[0], "attempt index is 1-based")
			}
		})
	}
}

func TestRetryErrorCarriesLastCause(t *testing.T) {
	causes := []error{errors.New("one"), errors.New("two"), errors.New("three")}
	_, err := DefaultRetryPolicy().Do(context.Background(), func(_ context.Context, attempt int) error {
		return causes[attempt-1]
	}, nil)

	var retryErr *RetryError
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, 3, retryErr.Attempts)
	assert.Same(t, causes[2], retryErr.Err)
}

func TestRetryBackoffStop(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, Backoff: &backoff.StopBackOff{}}
	attempts, err := policy.Do(context.Background(), func(context.Context, int) error {
		return errors.New("fail")
	}, nil)

	assert.Equal(t, 1, attempts)
	var retryErr *RetryError
	assert.True(t, errors.As(err, &retryErr))
	assert.EqualError(t, err, "gave up after 1 attempt: fail")
}

func TestRetryContextCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 3, Backoff: backoff.NewConstantBackOff(time.Hour)}

	done := make(chan struct{})
	var attempts int
	var err error
	go func() {
		attempts, err = policy.Do(ctx, func(context.Context, int) error {
			return errors.New("fail")
		}, nil)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not stop on cancellation")
	}
	assert.LessOrEqual(t, attempts, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewBackOff(t *testing.T) {
	b, err := NewBackOff("none", time.Second)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = NewBackOff("constant", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, b.NextBackOff())

	b, err = NewBackOff("exponential", 10*time.Millisecond)
	require.NoError(t, err)
	assert.NotNil(t, b)

	_, err = NewBackOff("fibonacci", 0)
	assert.Error(t, err)
}
