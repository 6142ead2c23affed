// Package providers defines the payment-provider abstraction the checkout
// and verification paths are written against. Concrete adapters live in
// subpackages; callers see only CheckoutHandle and VerificationResult.
package providers

import (
	"context"
	"errors"

	"bursar/pkg/models"
)

// ErrProviderUnreachable wraps transport-level failures talking to a
// provider. Verification treats it as an unknown outcome, never a denial.
var ErrProviderUnreachable = errors.New("payment provider unreachable")

// Status is a provider's answer about a payment.
type Status string

const (
	// StatusPaid means the provider confirms the payment settled.
	StatusPaid Status = "paid"
	// StatusNotPaid means the provider confirms the payment did not settle.
	StatusNotPaid Status = "not_paid"
	// StatusUnknown means the provider could not give a definitive answer.
	StatusUnknown Status = "unknown"
)

// VerificationResult is the outcome of asking a provider about a payment.
type VerificationResult struct {
	Status Status
	// Ref is the provider-side reference that was checked.
	Ref string
}

// CheckoutHandle is what a client needs to complete payment with a provider.
type CheckoutHandle struct {
	// Ref is the provider-side reference (session or order id).
	Ref string
	// URL is a hosted payment page, when the provider offers one.
	URL string
	// AmountSubunits and Currency echo what the provider will charge, for
	// client-side SDK flows that need them.
	AmountSubunits int64
	Currency       string
}

// Adapter is a payment provider the reconciliation engine can drive.
type Adapter interface {
	// Name identifies the provider in transaction rows and logs.
	Name() string
	// CreateCheckout registers txn with the provider and returns the handle
	// the client completes payment through.
	CreateCheckout(ctx context.Context, txn *models.CreditTransaction, origin string) (*CheckoutHandle, error)
	// Verify asks the provider for the definitive state of a payment.
	Verify(ctx context.Context, providerRef string) (*VerificationResult, error)
}
