// Package retry wraps external calls with bounded exponential backoff,
// retrying only failures that plausibly heal on their own.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
)

// Config bounds the retry loop.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultConfig matches the crawl policy: three attempts backed off at
// 1s, 2s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Multiplier:   2,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	return c
}

// ErrAttemptsExhausted marks an error chain where every attempt failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Do runs fn until it succeeds, the error is permanent, the context ends,
// or attempts run out. The final error stays unwrappable through the
// returned chain.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg = cfg.withDefaults()

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, cfg.MaxAttempts, lastErr)
}

// IsTransient reports whether an error class is worth retrying: timeouts,
// connection drops, DNS hiccups and 5xx responses. Client errors and
// context cancellation fail fast.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

var transientPatterns = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"temporary failure",
	"i/o timeout",
	"network is unreachable",
	"no such host",
}
