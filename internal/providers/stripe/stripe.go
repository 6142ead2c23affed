// Package stripe implements the Stripe checkout adapter. Payment state is
// always read back from Stripe; client-supplied success flags are never
// trusted on their own.
package stripe

import (
	"context"
	"fmt"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"bursar/internal/providers"
	"bursar/pkg/logging"
	"bursar/pkg/models"
)

// Config for creating a Stripe adapter.
type Config struct {
	SecretKey     string // STRIPE_SECRET_KEY
	WebhookSecret string // STRIPE_WEBHOOK_SECRET
	Logger        logging.Logger
}

// Adapter drives Stripe Checkout for credit purchases. Each Adapter carries
// its own API client; nothing global is mutated.
type Adapter struct {
	api           *client.API
	webhookSecret string
	logger        logging.Logger
}

// New creates a Stripe adapter.
func New(cfg Config) *Adapter {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &Adapter{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		logger:        cfg.Logger,
	}
}

// Name implements providers.Adapter.
func (a *Adapter) Name() string { return "stripe" }

// CreateCheckout opens a Stripe Checkout Session for the transaction. The
// price is inlined from the transaction snapshot so a later pricing change
// cannot alter what an open session charges.
func (a *Adapter) CreateCheckout(ctx context.Context, txn *models.CreditTransaction, origin string) (*providers.CheckoutHandle, error) {
	params := &stripeapi.CheckoutSessionParams{
		Mode: stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripeapi.String(txn.Currency),
					UnitAmount: stripeapi.Int64(txn.AmountCents),
					ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripeapi.String(fmt.Sprintf("%d credits (%s plan)", txn.Credits, txn.Plan)),
					},
				},
				Quantity: stripeapi.Int64(1),
			},
		},
		SuccessURL: stripeapi.String(origin + "/verify?success=true&transaction_id=" + txn.ID),
		CancelURL:  stripeapi.String(origin + "/verify?success=false&transaction_id=" + txn.ID),
		Metadata: map[string]string{
			"transaction_id": txn.ID,
			"user_id":        txn.UserID,
		},
	}
	params.Context = ctx

	sess, err := a.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	a.logger.WithFields(logging.Fields{
		"session_id":     sess.ID,
		"transaction_id": txn.ID,
	}).Info("Created Stripe checkout session")

	return &providers.CheckoutHandle{
		Ref:            sess.ID,
		URL:            sess.URL,
		AmountSubunits: txn.AmountCents,
		Currency:       txn.Currency,
	}, nil
}

// Verify fetches the checkout session and maps its payment status.
func (a *Adapter) Verify(ctx context.Context, sessionID string) (*providers.VerificationResult, error) {
	params := &stripeapi.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := a.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checkout session: %w", err)
	}

	return &providers.VerificationResult{
		Status: mapPaymentStatus(sess.PaymentStatus, sess.Status),
		Ref:    sessionID,
	}, nil
}

// mapPaymentStatus folds Stripe's session state into a verification status.
// An open session is not a denial; only an expired unpaid session is.
func mapPaymentStatus(payment stripeapi.CheckoutSessionPaymentStatus, session stripeapi.CheckoutSessionStatus) providers.Status {
	switch payment {
	case stripeapi.CheckoutSessionPaymentStatusPaid, stripeapi.CheckoutSessionPaymentStatusNoPaymentRequired:
		return providers.StatusPaid
	case stripeapi.CheckoutSessionPaymentStatusUnpaid:
		if session == stripeapi.CheckoutSessionStatusExpired {
			return providers.StatusNotPaid
		}
		return providers.StatusUnknown
	default:
		return providers.StatusUnknown
	}
}

// VerifyAndParseWebhook checks the Stripe-Signature header against the
// endpoint secret and parses the event payload.
func (a *Adapter) VerifyAndParseWebhook(payload []byte, signature string) (*stripeapi.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, a.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}
	return &event, nil
}

// CheckoutSessionFromEvent extracts the checkout session carried by a
// checkout.session.* event.
func CheckoutSessionFromEvent(event *stripeapi.Event) (*stripeapi.CheckoutSession, error) {
	if !strings.HasPrefix(string(event.Type), "checkout.session.") {
		return nil, fmt.Errorf("event type %s does not contain a checkout session", event.Type)
	}
	var sess stripeapi.CheckoutSession
	if err := sess.UnmarshalJSON(event.Data.Raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}
	return &sess, nil
}
