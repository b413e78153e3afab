// Package resilience provides retry, reconnect and circuit breaker
// primitives for the external services the recorder talks to.
package resilience

import (
	"math/rand"
	"strings"
	"time"
)

// RetryConfig controls the retry policy.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

// DefaultRetryConfig is the policy store writes use unless overridden.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// RetryableFunc is the operation under retry.
type RetryableFunc func() error

// IsRetryableError decides whether an error is worth another attempt.
type IsRetryableError func(error) bool

// Retry runs fn until it succeeds, the attempts are exhausted, or
// isRetryable rejects the error. nil config uses the default policy;
// nil isRetryable retries everything.
func Retry(fn RetryableFunc, config *RetryConfig, isRetryable IsRetryableError) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return err
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		sleep := backoff
		if config.Jitter {
			// up to 25% extra to spread out competing retries
			sleep += time.Duration(rand.Float64() * 0.25 * float64(backoff))
		}
		if sleep > config.MaxBackoff {
			sleep = config.MaxBackoff
		}
		time.Sleep(sleep)

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return lastErr
}

var retryableFragments = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"network is unreachable",
	"no route to host",
	"unavailable",
	"deadline exceeded",
	"timeout",
	"i/o timeout",
	"too many connections",
	"rate limit",
}

// IsRetryableNetworkError reports whether the error looks like a
// transient network or load problem. Errors like a missing record are
// not retryable and fail fast.
func IsRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
