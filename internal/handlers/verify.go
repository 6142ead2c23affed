package handlers

import (
	"errors"
	"net/http"

	"bursar/internal/ledger"
	"bursar/internal/providers"
	"bursar/internal/reconcile"
	bursarapi "bursar/pkg/api/bursar"
	"bursar/pkg/middleware"
	"bursar/pkg/models"
)

// VerifyStripe handles the client callback after the Stripe redirect. The
// success flag from the redirect URL only short-circuits to a denial
// message; credits are only ever granted off Stripe's own answer.
func VerifyStripe(c middleware.Context) {
	var req bursarapi.StripeVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bursarapi.ErrorResponse{Error: "Invalid request body"})
		return
	}

	txn, err := store.Get(c.Request.Context(), req.TransactionID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, bursarapi.ErrorResponse{Error: "Transaction not found"})
			return
		}
		logger.WithError(err).Error("Failed to load transaction")
		c.JSON(http.StatusInternalServerError, bursarapi.ErrorResponse{Error: "Failed to load transaction"})
		return
	}

	if !req.Success {
		c.JSON(http.StatusOK, bursarapi.VerifyResponse{Success: false, Message: "Payment Failed"})
		return
	}

	if !txn.ProviderRef.Valid || txn.Provider.String != stripeAdapter.Name() {
		c.JSON(http.StatusConflict, bursarapi.ErrorResponse{Error: "Transaction has no Stripe checkout"})
		return
	}

	verification, err := stripeAdapter.Verify(c.Request.Context(), txn.ProviderRef.String)
	if err != nil {
		if errors.Is(err, providers.ErrProviderUnreachable) {
			bursarMetrics.Verifications.WithLabelValues("stripe", "unreachable").Inc()
			c.JSON(http.StatusBadGateway, bursarapi.ErrorResponse{Error: "Payment provider unavailable, try again"})
			return
		}
		logger.WithError(err).Error("Stripe verification failed")
		c.JSON(http.StatusInternalServerError, bursarapi.ErrorResponse{Error: "Verification failed"})
		return
	}

	respondReconciled(c, "stripe", txn.ID, verification)
}

// VerifyRazorpay handles the client callback after Razorpay's widget
// resolves. Only the order id is taken from the client; payment state
// comes from Razorpay's API.
func VerifyRazorpay(c middleware.Context) {
	var req bursarapi.RazorpayVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bursarapi.ErrorResponse{Error: "Invalid request body"})
		return
	}

	txn, err := store.GetByProviderRef(c.Request.Context(), razorpayAdapter.Name(), req.OrderID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, bursarapi.ErrorResponse{Error: "Transaction not found"})
			return
		}
		logger.WithError(err).Error("Failed to load transaction")
		c.JSON(http.StatusInternalServerError, bursarapi.ErrorResponse{Error: "Failed to load transaction"})
		return
	}

	verification, err := razorpayAdapter.Verify(c.Request.Context(), req.OrderID)
	if err != nil {
		if errors.Is(err, providers.ErrProviderUnreachable) {
			bursarMetrics.Verifications.WithLabelValues("razorpay", "unreachable").Inc()
			c.JSON(http.StatusBadGateway, bursarapi.ErrorResponse{Error: "Payment provider unavailable, try again"})
			return
		}
		logger.WithError(err).Error("Razorpay verification failed")
		c.JSON(http.StatusInternalServerError, bursarapi.ErrorResponse{Error: "Verification failed"})
		return
	}

	respondReconciled(c, "razorpay", txn.ID, verification)
}

// respondReconciled drives one verification result through the engine and
// maps the outcome onto the wire.
func respondReconciled(c middleware.Context, provider, txnID string, verification *providers.VerificationResult) {
	result, err := engine.Reconcile(c.Request.Context(), txnID, verification)
	if err != nil {
		var partial *reconcile.PartialFailureError
		if errors.As(err, &partial) {
			bursarMetrics.Verifications.WithLabelValues(provider, "partial_failure").Inc()
			// Money is taken; the sweeper completes the grant.
			c.JSON(http.StatusInternalServerError, bursarapi.VerifyResponse{
				Success: false,
				Message: "Payment received, credits are being applied",
			})
			return
		}
		logger.WithError(err).Error("Reconciliation failed")
		c.JSON(http.StatusInternalServerError, bursarapi.ErrorResponse{Error: "Verification failed"})
		return
	}

	bursarMetrics.Verifications.WithLabelValues(provider, string(result.Outcome)).Inc()

	switch result.Outcome {
	case reconcile.OutcomeCredited:
		bursarMetrics.CreditsGranted.WithLabelValues(result.Txn.Plan).Inc()
		c.JSON(http.StatusOK, bursarapi.VerifyResponse{
			Success: true,
			Message: "Credits Added",
			Balance: result.Balance,
		})
	case reconcile.OutcomeAlreadyCredited:
		// The payment settled and the credits landed; a repeat verification
		// is a success for the caller, just with nothing left to grant.
		c.JSON(http.StatusOK, bursarapi.VerifyResponse{
			Success: true,
			Message: "Payment Already Verified",
		})
	case reconcile.OutcomeDenied:
		message := "Payment Failed"
		if result.Txn.Status == models.TransactionExpired {
			message = "Transaction Expired"
		}
		c.JSON(http.StatusOK, bursarapi.VerifyResponse{Success: false, Message: message})
	default:
		c.JSON(http.StatusAccepted, bursarapi.VerifyResponse{
			Success: false,
			Message: "Payment Not Confirmed Yet",
		})
	}
}
