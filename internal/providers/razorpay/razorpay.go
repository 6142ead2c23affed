// Package razorpay implements the Razorpay order adapter. Razorpay's client
// SDK collects payment in the browser; the server treats the order status
// fetched from the API as the only source of truth.
package razorpay

import (
	"context"
	"fmt"

	razorpaysdk "github.com/razorpay/razorpay-go"

	"bursar/internal/providers"
	"bursar/pkg/logging"
	"bursar/pkg/models"
)

// Config for creating a Razorpay adapter.
type Config struct {
	KeyID     string // RAZORPAY_KEY_ID
	KeySecret string // RAZORPAY_KEY_SECRET
	Logger    logging.Logger
}

// Adapter drives Razorpay orders for credit purchases.
type Adapter struct {
	client *razorpaysdk.Client
	logger logging.Logger
}

// New creates a Razorpay adapter.
func New(cfg Config) *Adapter {
	return &Adapter{
		client: razorpaysdk.NewClient(cfg.KeyID, cfg.KeySecret),
		logger: cfg.Logger,
	}
}

// Name implements providers.Adapter.
func (a *Adapter) Name() string { return "razorpay" }

// CreateCheckout creates a Razorpay order for the transaction. The receipt
// carries the transaction id so the order can always be traced back.
func (a *Adapter) CreateCheckout(ctx context.Context, txn *models.CreditTransaction, origin string) (*providers.CheckoutHandle, error) {
	data := map[string]interface{}{
		"amount":   txn.AmountCents,
		"currency": txn.Currency,
		"receipt":  txn.ID,
		"notes": map[string]interface{}{
			"transaction_id": txn.ID,
			"user_id":        txn.UserID,
			"plan":           txn.Plan,
		},
	}

	order, err := a.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create razorpay order: %w", err)
	}

	orderID, ok := order["id"].(string)
	if !ok || orderID == "" {
		return nil, fmt.Errorf("razorpay order response missing id")
	}

	a.logger.WithFields(logging.Fields{
		"order_id":       orderID,
		"transaction_id": txn.ID,
	}).Info("Created Razorpay order")

	return &providers.CheckoutHandle{
		Ref:            orderID,
		AmountSubunits: txn.AmountCents,
		Currency:       txn.Currency,
	}, nil
}

// Verify fetches the order and maps its status.
func (a *Adapter) Verify(ctx context.Context, orderID string) (*providers.VerificationResult, error) {
	order, err := a.client.Order.Fetch(orderID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch razorpay order: %w", err)
	}

	status, _ := order["status"].(string)
	return &providers.VerificationResult{
		Status: mapOrderStatus(status),
		Ref:    orderID,
	}, nil
}

// mapOrderStatus folds Razorpay's order status into a verification status.
// An attempted order may still settle, so it is unknown rather than denied.
func mapOrderStatus(status string) providers.Status {
	switch status {
	case "paid":
		return providers.StatusPaid
	case "created":
		return providers.StatusNotPaid
	case "attempted":
		return providers.StatusUnknown
	default:
		return providers.StatusUnknown
	}
}
