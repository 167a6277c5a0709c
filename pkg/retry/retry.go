// Package retry provides bounded retries with exponential backoff for
// idempotent collaborator calls. Block submissions are never routed
// through here: retrying a submitted-but-unconfirmed send risks a
// double spend.
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy bounds the retry behavior
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultPolicy is suitable for fast remote lookups
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

// Retrier executes operations under a Policy
type Retrier struct {
	policy Policy
	logger *zap.Logger
}

// NewRetrier creates a retrier
func NewRetrier(policy Policy, logger *zap.Logger) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BaseBackoff <= 0 {
		policy.BaseBackoff = 500 * time.Millisecond
	}
	if policy.MaxBackoff < policy.BaseBackoff {
		policy.MaxBackoff = policy.BaseBackoff
	}
	return &Retrier{policy: policy, logger: logger}
}

// Do runs operation until it succeeds, the attempts are exhausted, or
// the context is done. The last error is returned.
func (r *Retrier) Do(ctx context.Context, name string, operation func() error) error {
	backoff := r.policy.BaseBackoff
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				r.logger.Info("Operation succeeded after retries",
					zap.String("operation", name),
					zap.Int("attempt", attempt))
			}
			return nil
		}

		if attempt == r.policy.MaxAttempts {
			break
		}

		r.logger.Warn("Operation failed, backing off",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > r.policy.MaxBackoff {
			backoff = r.policy.MaxBackoff
		}
	}

	return lastErr
}
