package queue

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RetryConfig controls how store writes are retried with exponential
// backoff and jitter.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	// Default: 3.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`

	// InitialBackoff is the delay before the first retry. Default: 100ms.
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`

	// MaxBackoff caps the backoff duration. Default: 5s.
	MaxBackoff time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`

	// Multiplier scales the backoff after each attempt. Default: 2.0.
	Multiplier float64 `yaml:"multiplier" mapstructure:"multiplier"`

	// JitterFraction adds random jitter as a fraction of the computed delay.
	JitterFraction float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// DefaultRetryConfig returns the retry policy used for store writes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = d.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = d.MaxBackoff
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = d.Multiplier
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// retry executes fn until it succeeds, returns a permanent error, the
// attempts run out or ctx is cancelled.
func retry(ctx context.Context, cfg RetryConfig, op string, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !IsTransient(lastErr) {
			return lastErr
		}
		if attempt >= cfg.MaxAttempts-1 {
			break
		}

		zap.L().Warn("queue: retrying store write",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)

		timer := time.NewTimer(backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

func backoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxBackoff) {
		delay = float64(cfg.MaxBackoff)
	}
	if cfg.JitterFraction > 0 {
		jitterRange := delay * cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// IsTransient reports whether a store error is worth retrying: Postgres
// errors pgconn marks safe to retry, timeouts, dropped connections and
// SQLite lock contention.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"database is locked",
		"sqlite_busy",
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
