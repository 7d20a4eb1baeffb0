package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
		AddJitter:    false,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("publish timeout")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_AllAttemptsFail(t *testing.T) {
	sentinel := errors.New("broker unavailable")
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad subject")
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		attempts++
		return NonRetryable(sentinel)
	})

	require.Error(t, err)
	assert.True(t, IsNonRetryable(err))
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialDelay: 200 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	start := time.Now()
	err := Do(ctx, cfg, func() error {
		attempts++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestDo_OnRetry(t *testing.T) {
	var seen []int
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond,
		OnRetry: func(attempt int, err error) {
			assert.EqualError(t, err, "timeout")
			seen = append(seen, attempt)
		}}

	err := Do(context.Background(), cfg, func() error { return errors.New("timeout") })
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, seen, "no callback after the final attempt")
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{}, func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative initial delay", Config{MaxAttempts: 1, InitialDelay: -1}},
		{"negative max delay", Config{MaxAttempts: 1, MaxDelay: -1}},
		{"negative multiplier", Config{MaxAttempts: 1, Multiplier: -1}},
		{"max below initial", Config{MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			err := Do(context.Background(), tt.cfg, func() error {
				called = true
				return nil
			})
			assert.Error(t, err)
			assert.False(t, called)
		})
	}
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("temporary failure")
		}
		return "42", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "42", got)
	assert.Equal(t, 2, attempts)
}

func TestPresets(t *testing.T) {
	for name, cfg := range map[string]Config{
		"default":  DefaultConfig(),
		"quick":    Quick(),
		"delivery": Delivery(),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Greater(t, cfg.MaxAttempts, 0)
			assert.Greater(t, cfg.InitialDelay, time.Duration(0))
			assert.GreaterOrEqual(t, cfg.MaxDelay, cfg.InitialDelay)
			assert.Greater(t, cfg.Multiplier, 1.0)
		})
	}
	assert.Less(t, Delivery().MaxDelay, DefaultConfig().MaxDelay)
}

func TestNonRetryable_Nil(t *testing.T) {
	assert.NoError(t, NonRetryable(nil))
	assert.False(t, IsNonRetryable(errors.New("plain")))
}
