package rigel

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Default configuration values
const (
	// DefaultRuns is the reasoner run count used by the CLI and server
	DefaultRuns = 3

	// DefaultCallTimeout bounds a single invoker call
	DefaultCallTimeout = 5 * time.Minute

	// DefaultConcurrency bounds concurrent reasoner runs
	DefaultConcurrency = 4
)

// RetryPolicy configures retries of failed reasoner runs. Selector and
// validator are never retried: their failures have deterministic fallbacks.
type RetryPolicy struct {
	// MaxRetries is the number of extra attempts per run (0 disables retries)
	MaxRetries int

	// Backoff configures delay between retries
	Backoff BackoffConfig
}

// BackoffConfig configures retry delays.
type BackoffConfig struct {
	// Initial delay before first retry
	Initial time.Duration

	// Multiplier for exponential backoff
	Multiplier float64

	// Max delay between retries
	Max time.Duration

	// Jitter adds randomness (0.0-1.0)
	Jitter float64

	// Type of backoff (exponential, constant)
	Type BackoffType
}

// BackoffType specifies the backoff algorithm.
type BackoffType int

const (
	BackoffExponential BackoffType = iota
	BackoffConstant
)

// newBackOff converts the config into a backoff.BackOff.
func (c BackoffConfig) newBackOff() backoff.BackOff {
	if c.Initial <= 0 {
		return &backoff.ZeroBackOff{}
	}
	if c.Type == BackoffConstant {
		return backoff.NewConstantBackOff(c.Initial)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.Initial
	b.RandomizationFactor = c.Jitter
	if c.Multiplier > 0 {
		b.Multiplier = c.Multiplier
	}
	if c.Max > 0 {
		b.MaxInterval = c.Max
	}
	return b
}

// retryable reports whether a failed reasoner attempt may be retried.
// Cancellation of the solve itself is never retried.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrUnparsableAnswer) ||
		errors.Is(err, ErrInvokerTimeout) ||
		errors.Is(err, ErrInvokerUnavailable)
}

// RateLimit configures request throttling of an invoker.
type RateLimit struct {
	// RequestsPerMinute limits request rate (0 disables limiting)
	RequestsPerMinute int

	// Burst is the number of requests allowed at once (default 1)
	Burst int
}
