package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/failsafe-go/failsafe-go/timeout"

	"bursar/pkg/logging"
	"bursar/pkg/models"
)

// RetryConfig bounds the provider calls made through WithRetry.
type RetryConfig struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryConfig returns the bounds used for provider API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		BaseDelay:      250 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// retryAdapter decorates an Adapter with per-attempt timeouts and bounded
// exponential backoff. Exhausted retries surface as ErrProviderUnreachable
// so callers can distinguish "provider said no" from "provider unreachable".
type retryAdapter struct {
	inner    Adapter
	checkout failsafe.Executor[*CheckoutHandle]
	verify   failsafe.Executor[*VerificationResult]
	logger   logging.Logger
}

// WithRetry wraps adapter so transient provider failures are retried and
// terminal transport failures come back as ErrProviderUnreachable.
func WithRetry(adapter Adapter, cfg RetryConfig, logger logging.Logger) Adapter {
	return &retryAdapter{
		inner:    adapter,
		checkout: newExecutor[*CheckoutHandle](cfg),
		verify:   newExecutor[*VerificationResult](cfg),
		logger:   logger,
	}
}

func newExecutor[T any](cfg RetryConfig) failsafe.Executor[T] {
	retry := retrypolicy.NewBuilder[T]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		Build()
	return failsafe.With(retry, timeout.New[T](cfg.AttemptTimeout))
}

func (r *retryAdapter) Name() string {
	return r.inner.Name()
}

func (r *retryAdapter) CreateCheckout(ctx context.Context, txn *models.CreditTransaction, origin string) (*CheckoutHandle, error) {
	handle, err := r.checkout.WithContext(ctx).Get(func() (*CheckoutHandle, error) {
		return r.inner.CreateCheckout(ctx, txn, origin)
	})
	if err != nil {
		r.logger.WithFields(logging.Fields{
			"provider":       r.inner.Name(),
			"transaction_id": txn.ID,
			"error":          err.Error(),
		}).Warn("Checkout creation failed after retries")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	return handle, nil
}

func (r *retryAdapter) Verify(ctx context.Context, providerRef string) (*VerificationResult, error) {
	result, err := r.verify.WithContext(ctx).Get(func() (*VerificationResult, error) {
		return r.inner.Verify(ctx, providerRef)
	})
	if err != nil {
		r.logger.WithFields(logging.Fields{
			"provider":     r.inner.Name(),
			"provider_ref": providerRef,
			"error":        err.Error(),
		}).Warn("Verification failed after retries")
		return nil, fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	return result, nil
}
