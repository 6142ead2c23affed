package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"bursar/pkg/models"
)

type flakyAdapter struct {
	failures int
	calls    int
}

func (f *flakyAdapter) Name() string { return "flaky" }

func (f *flakyAdapter) CreateCheckout(ctx context.Context, txn *models.CreditTransaction, origin string) (*CheckoutHandle, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection refused")
	}
	return &CheckoutHandle{Ref: "ref-1", URL: "https://pay.example/ref-1"}, nil
}

func (f *flakyAdapter) Verify(ctx context.Context, ref string) (*VerificationResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection refused")
	}
	return &VerificationResult{Status: StatusPaid, Ref: ref}, nil
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestWithRetryRecoversFromTransientFailure(t *testing.T) {
	inner := &flakyAdapter{failures: 2}
	adapter := WithRetry(inner, fastRetryConfig(), quietLogger())

	result, err := adapter.Verify(context.Background(), "ref-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Status != StatusPaid {
		t.Errorf("expected paid status, got %s", result.Status)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestWithRetryExhaustionIsUnreachable(t *testing.T) {
	inner := &flakyAdapter{failures: 10}
	adapter := WithRetry(inner, fastRetryConfig(), quietLogger())

	_, err := adapter.Verify(context.Background(), "ref-1")
	if !errors.Is(err, ErrProviderUnreachable) {
		t.Fatalf("expected ErrProviderUnreachable, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 attempts before giving up, got %d", inner.calls)
	}
}

func TestWithRetryCheckout(t *testing.T) {
	inner := &flakyAdapter{failures: 1}
	adapter := WithRetry(inner, fastRetryConfig(), quietLogger())

	handle, err := adapter.CreateCheckout(context.Background(), &models.CreditTransaction{ID: "txn-1"}, "https://app.example")
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if handle.Ref != "ref-1" {
		t.Errorf("unexpected ref %s", handle.Ref)
	}
}

type stalledAdapter struct{}

func (stalledAdapter) Name() string { return "stalled" }

func (stalledAdapter) CreateCheckout(ctx context.Context, txn *models.CreditTransaction, origin string) (*CheckoutHandle, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledAdapter) Verify(ctx context.Context, ref string) (*VerificationResult, error) {
	time.Sleep(200 * time.Millisecond)
	return &VerificationResult{Status: StatusPaid, Ref: ref}, nil
}

func TestWithRetryAttemptTimeout(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:     1,
		BaseDelay:      time.Millisecond,
		MaxDelay:       time.Millisecond,
		AttemptTimeout: 10 * time.Millisecond,
	}
	adapter := WithRetry(stalledAdapter{}, cfg, quietLogger())

	start := time.Now()
	_, err := adapter.Verify(context.Background(), "ref-1")
	if !errors.Is(err, ErrProviderUnreachable) {
		t.Fatalf("expected ErrProviderUnreachable on timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout did not bound the attempts, took %v", elapsed)
	}
}

func TestWithRetryPreservesName(t *testing.T) {
	adapter := WithRetry(&flakyAdapter{}, fastRetryConfig(), quietLogger())
	if adapter.Name() != "flaky" {
		t.Errorf("expected inner name, got %s", adapter.Name())
	}
}
