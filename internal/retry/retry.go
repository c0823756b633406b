package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Config configures retry behavior with exponential backoff
type Config struct {
	MaxRetries int           `json:"max_retries"` // Maximum number of retry attempts (default: 3)
	BaseDelay  time.Duration `json:"base_delay"`  // Base delay between retries (default: 200ms)
	MaxDelay   time.Duration `json:"max_delay"`   // Maximum delay between retries (default: 5s)
	Multiplier float64       `json:"multiplier"`  // Exponential backoff multiplier (default: 2.0)
	Jitter     bool          `json:"jitter"`      // Add random jitter to prevent thundering herd (default: true)
	LogRetries bool          `json:"log_retries"` // Whether to log retry attempts (default: true)
}

// DefaultConfig returns a retry configuration with sensible defaults
// for short storage operations.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
		LogRetries: true,
	}
}

// Do executes an operation with exponential backoff retry logic. It
// returns the last error when all attempts fail, or nil as soon as one
// attempt succeeds. Context cancellation aborts the wait between
// attempts.
func Do(ctx context.Context, config Config, name string, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(config, attempt)
			if config.LogRetries {
				log.Warn().
					Str("operation", name).
					Int("attempt", attempt).
					Dur("delay", delay).
					Err(lastErr).
					Msg("retrying after failure")
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
	}

	return lastErr
}

// backoffDelay computes the delay before the given attempt (1-based).
func backoffDelay(config Config, attempt int) time.Duration {
	delay := float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt-1))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		// Up to 25% random jitter on top of the computed delay.
		delay += delay * 0.25 * rand.Float64()
	}

	return time.Duration(delay)
}
