package connector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aparnap2/internal-flow-ops/backoff"
)

// RetryingCRM wraps a CRM with bounded retries for transient faults during
// event enrichment. Attempts beyond the first wait per the backoff
// strategy; a cancelled context stops retrying immediately.
type RetryingCRM struct {
	inner    CRM
	strategy backoff.Strategy
	attempts int
	logger   *slog.Logger
}

var _ CRM = (*RetryingCRM)(nil)

// WithRetry wraps crm with up to attempts tries per call.
func WithRetry(crm CRM, strategy backoff.Strategy, attempts int, logger *slog.Logger) *RetryingCRM {
	if strategy == nil {
		strategy = backoff.DefaultStrategy()
	}
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingCRM{inner: crm, strategy: strategy, attempts: attempts, logger: logger}
}

func retry[T any](ctx context.Context, r *RetryingCRM, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(r.strategy.Delay(attempt - 1)):
			}
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		r.logger.Warn("crm call failed",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}
	return zero, fmt.Errorf("connector: %s after %d attempts: %w", op, r.attempts, lastErr)
}

func (r *RetryingCRM) Company(ctx context.Context, id string) (*Object, error) {
	return retry(ctx, r, "company", func() (*Object, error) { return r.inner.Company(ctx, id) })
}

func (r *RetryingCRM) Contact(ctx context.Context, id string) (*Object, error) {
	return retry(ctx, r, "contact", func() (*Object, error) { return r.inner.Contact(ctx, id) })
}

func (r *RetryingCRM) Deal(ctx context.Context, id string) (*Object, error) {
	return retry(ctx, r, "deal", func() (*Object, error) { return r.inner.Deal(ctx, id) })
}

func (r *RetryingCRM) Associations(ctx context.Context, objectType, id string) (map[string][]Association, error) {
	return retry(ctx, r, "associations", func() (map[string][]Association, error) {
		return r.inner.Associations(ctx, objectType, id)
	})
}
