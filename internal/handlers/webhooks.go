package handlers

import (
	"io"
	"net/http"

	"bursar/internal/providers"
	providerstripe "bursar/internal/providers/stripe"
	bursarapi "bursar/pkg/api/bursar"
	"bursar/pkg/logging"
	"bursar/pkg/middleware"
)

// HandleStripeWebhook processes Stripe event deliveries. The signature is
// verified before anything is parsed, replays are dropped by event id, and
// a completed checkout session is reconciled exactly like a client-side
// verification would be. Stripe retries on non-2xx, so transient failures
// return 500 and everything handled or ignorable returns 200.
func HandleStripeWebhook(c middleware.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, bursarapi.ErrorResponse{Error: "Failed to read body"})
		return
	}

	event, err := stripeWebhooks.VerifyAndParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		bursarMetrics.WebhooksProcessed.WithLabelValues("stripe", "bad_signature").Inc()
		logger.WithError(err).Warn("Rejected Stripe webhook with bad signature")
		c.JSON(http.StatusBadRequest, bursarapi.ErrorResponse{Error: "Invalid signature"})
		return
	}

	if !replay.ClaimEvent(c.Request.Context(), "stripe", event.ID) {
		bursarMetrics.WebhooksProcessed.WithLabelValues("stripe", "replay").Inc()
		logger.WithFields(logging.Fields{"event_id": event.ID}).Info("Ignoring replayed Stripe webhook")
		c.JSON(http.StatusOK, middleware.H{"received": true})
		return
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		sess, err := providerstripe.CheckoutSessionFromEvent(event)
		if err != nil {
			bursarMetrics.WebhooksProcessed.WithLabelValues("stripe", "bad_payload").Inc()
			logger.WithError(err).Error("Failed to parse checkout session from webhook")
			c.JSON(http.StatusBadRequest, bursarapi.ErrorResponse{Error: "Invalid payload"})
			return
		}

		txnID := sess.Metadata["transaction_id"]
		if txnID == "" {
			// Not one of ours; acknowledge so Stripe stops retrying.
			bursarMetrics.WebhooksProcessed.WithLabelValues("stripe", "ignored").Inc()
			c.JSON(http.StatusOK, middleware.H{"received": true})
			return
		}

		// The signature check makes the payload trustworthy, but only an
		// explicit paid status may credit; anything else stays unknown
		// until a later event or verification settles it.
		verification := &providers.VerificationResult{
			Status: providers.StatusUnknown,
			Ref:    sess.ID,
		}
		switch sess.PaymentStatus {
		case "paid", "no_payment_required":
			verification.Status = providers.StatusPaid
		}

		if _, err := engine.Reconcile(c.Request.Context(), txnID, verification); err != nil {
			replay.ReleaseEvent(c.Request.Context(), "stripe", event.ID)
			bursarMetrics.WebhooksProcessed.WithLabelValues("stripe", "error").Inc()
			logger.WithFields(logging.Fields{
				"event_id":       event.ID,
				"transaction_id": txnID,
				"error":          err.Error(),
			}).Error("Webhook reconciliation failed")
			// Non-2xx makes Stripe redeliver; crediting is idempotent.
			c.JSON(http.StatusInternalServerError, bursarapi.ErrorResponse{Error: "Reconciliation failed"})
			return
		}

		bursarMetrics.WebhooksProcessed.WithLabelValues("stripe", "processed").Inc()
		c.JSON(http.StatusOK, middleware.H{"received": true})

	case "checkout.session.expired":
		bursarMetrics.WebhooksProcessed.WithLabelValues("stripe", "processed").Inc()
		c.JSON(http.StatusOK, middleware.H{"received": true})

	default:
		bursarMetrics.WebhooksProcessed.WithLabelValues("stripe", "ignored").Inc()
		c.JSON(http.StatusOK, middleware.H{"received": true})
	}
}
