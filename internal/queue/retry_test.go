package queue

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"conn reset", eris.Wrap(syscall.ECONNRESET, "exec"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"constraint", errors.New("UNIQUE constraint failed: tasks.id"), false},
		{"not found", errors.New("task not found: x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	err := retry(context.Background(), fastRetry(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanent(t *testing.T) {
	calls := 0
	err := retry(context.Background(), fastRetry(), "test", func(context.Context) error {
		calls++
		return errors.New("task not found: x")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	err := retry(context.Background(), fastRetry(), "test", func(context.Context) error {
		calls++
		return errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry(ctx, fastRetry(), "test", func(context.Context) error {
		calls++
		return errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff_Capped(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 2 * time.Second, Multiplier: 10}.withDefaults()
	cfg.JitterFraction = 0
	assert.Equal(t, time.Second, backoff(0, cfg))
	assert.Equal(t, 2*time.Second, backoff(3, cfg))
}
