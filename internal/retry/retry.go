package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPermanent marks an error that retrying cannot fix. Wrap with Permanent
// to stop the loop early.
var ErrPermanent = errors.New("permanent failure")

func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

type Config struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool // exponential: delay doubles each attempt
}

// WithRetry runs fn until it succeeds, fails permanently, or attempts run
// out. The context cancels the inter-attempt wait.
func WithRetry(ctx context.Context, config Config, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err

			if errors.Is(err, ErrPermanent) {
				return err
			}
			if attempt == config.MaxAttempts {
				return fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, err)
			}

			delay := config.Delay
			if config.Backoff {
				delay = config.Delay << (attempt - 1)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
		return nil
	}

	return lastErr
}
