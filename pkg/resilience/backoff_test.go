package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartupBackoff(t *testing.T) {
	backoff := StartupBackoff()

	assert.Equal(t, 500*time.Millisecond, backoff.BaseDelay)
	assert.Equal(t, 10*time.Second, backoff.MaxDelay)
	assert.Equal(t, 2.0, backoff.Multiplier)
	assert.Equal(t, 0.1, backoff.Jitter)
}

func TestExponentialBackoff_NextDelay(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 100 * time.Millisecond},
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{6, 6400 * time.Millisecond},
		{7, 10 * time.Second},
		{10, 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoff_WithJitter(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}

	for i := 0; i < 100; i++ {
		delay := backoff.NextDelay(3)
		assert.GreaterOrEqual(t, delay, 720*time.Millisecond)
		assert.LessOrEqual(t, delay, 880*time.Millisecond)
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	noDelay := &FixedBackoff{Delay: 0}

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		var retried []int
		err := Retry(ctx, 5, noDelay, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		}, func(attempt int, _ error, _ time.Duration) {
			retried = append(retried, attempt)
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("returns the last error", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, noDelay, func(context.Context) error {
			calls++
			return errors.New("still down")
		}, nil)

		assert.EqualError(t, err, "still down")
		assert.Equal(t, 3, calls)
	})

	t.Run("at least one attempt", func(t *testing.T) {
		calls := 0
		_ = Retry(ctx, 0, noDelay, func(context.Context) error {
			calls++
			return errors.New("down")
		}, nil)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		calls := 0
		err := Retry(cancelled, 10, &FixedBackoff{Delay: time.Hour}, func(context.Context) error {
			calls++
			cancel()
			return errors.New("down")
		}, nil)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
