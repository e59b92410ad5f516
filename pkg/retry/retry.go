package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/scoreflow/scoreflow/pkg/providers"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts int           // Total attempts, including the first call
	MinBackoff  time.Duration // Backoff before the first retry
	MaxBackoff  time.Duration // Backoff ceiling
	OnRetry     func()        // Observer invoked once per scheduled retry, may be nil
}

// DefaultConfig returns sensible defaults for provider calls
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		MinBackoff:  500 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
	}
}

// Do executes fn with exponential backoff retries. Only errors classified
// retryable by the provider taxonomy are retried; everything else returns
// after a single attempt. Exhausting attempts yields the last error.
func Do(ctx context.Context, config Config, fn func() error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !providers.Retryable(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == config.MaxAttempts-1 {
			break
		}

		if config.OnRetry != nil {
			config.OnRetry()
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(Backoff(config, attempt)):
		}
	}

	return fmt.Errorf("max attempts (%d) exhausted: %w", config.MaxAttempts, lastErr)
}

// Backoff computes the delay before retrying after the given zero-based
// attempt: min(MaxBackoff, MinBackoff * 2^attempt) plus up to 20% jitter.
// Jitter keeps concurrent jobs hitting one provider from retrying in
// lockstep.
func Backoff(config Config, attempt int) time.Duration {
	backoff := config.MinBackoff << uint(attempt)
	if backoff > config.MaxBackoff || backoff <= 0 {
		backoff = config.MaxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(backoff)/5 + 1))
	return backoff + jitter
}
