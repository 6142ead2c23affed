package handlers

import (
	"errors"
	"net/http"

	"bursar/internal/ledger"
	"bursar/internal/pricing"
	bursarapi "bursar/pkg/api/bursar"
	"bursar/pkg/ctxkeys"
	"bursar/pkg/logging"
	"bursar/pkg/middleware"
)

// GetPlans returns the pricing table.
func GetPlans(c middleware.Context) {
	resp := bursarapi.PlansResponse{}
	for _, plan := range pricing.Plans() {
		price, err := pricing.Quote(plan)
		if err != nil {
			continue
		}
		resp.Plans = append(resp.Plans, bursarapi.PlanInfo{
			ID:          string(plan),
			Credits:     price.Credits,
			AmountCents: price.AmountCents,
			Currency:    price.Currency,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// GetCredits returns the authenticated user's credit balance.
func GetCredits(c middleware.Context) {
	userID := c.GetString(string(ctxkeys.KeyUserID))

	balance, err := balances.Balance(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, bursarapi.ErrorResponse{Error: "User not found"})
			return
		}
		logger.WithError(err).Error("Failed to read credit balance")
		c.JSON(http.StatusInternalServerError, bursarapi.ErrorResponse{Error: "Failed to read balance"})
		return
	}

	c.JSON(http.StatusOK, bursarapi.CreditsResponse{Success: true, Credits: balance})
}

// CreateStripeCheckout opens a pending transaction and a Stripe Checkout
// Session for it.
func CreateStripeCheckout(c middleware.Context) {
	userID := c.GetString(string(ctxkeys.KeyUserID))

	var req bursarapi.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bursarapi.ErrorResponse{Error: "Invalid request body"})
		return
	}

	plan, err := pricing.ParsePlan(req.PlanID)
	if err != nil {
		c.JSON(http.StatusBadRequest, bursarapi.ErrorResponse{Error: "Unknown plan"})
		return
	}

	txn, err := store.Create(c.Request.Context(), userID, plan)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, bursarapi.ErrorResponse{Error: "User not found"})
			return
		}
		logger.WithError(err).Error("Failed to create transaction")
		c.JSON(http.StatusInternalServerError, bursarapi.ErrorResponse{Error: "Failed to create transaction"})
		return
	}

	handle, err := stripeAdapter.CreateCheckout(c.Request.Context(), txn, appOrigin)
	if err != nil {
		logger.WithFields(logging.Fields{
			"transaction_id": txn.ID,
			"error":          err.Error(),
		}).Error("Stripe checkout creation failed")
		c.JSON(http.StatusBadGateway, bursarapi.ErrorResponse{Error: "Payment provider unavailable"})
		return
	}

	if err := store.SetProviderRef(c.Request.Context(), txn.ID, stripeAdapter.Name(), handle.Ref); err != nil {
		logger.WithError(err).Error("Failed to record provider reference")
		c.JSON(http.StatusInternalServerError, bursarapi.ErrorResponse{Error: "Failed to record checkout"})
		return
	}

	bursarMetrics.CheckoutsCreated.WithLabelValues("stripe", string(plan)).Inc()

	c.JSON(http.StatusOK, bursarapi.StripeCheckoutResponse{
		Success:       true,
		SessionURL:    handle.URL,
		TransactionID: txn.ID,
	})
}

// CreateRazorpayCheckout opens a pending transaction and a Razorpay order
// for it. The client completes payment through Razorpay's widget.
func CreateRazorpayCheckout(c middleware.Context) {
	userID := c.GetString(string(ctxkeys.KeyUserID))

	var req bursarapi.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bursarapi.ErrorResponse{Error: "Invalid request body"})
		return
	}

	plan, err := pricing.ParsePlan(req.PlanID)
	if err != nil {
		c.JSON(http.StatusBadRequest, bursarapi.ErrorResponse{Error: "Unknown plan"})
		return
	}

	txn, err := store.Create(c.Request.Context(), userID, plan)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, bursarapi.ErrorResponse{Error: "User not found"})
			return
		}
		logger.WithError(err).Error("Failed to create transaction")
		c.JSON(http.StatusInternalServerError, bursarapi.ErrorResponse{Error: "Failed to create transaction"})
		return
	}

	handle, err := razorpayAdapter.CreateCheckout(c.Request.Context(), txn, appOrigin)
	if err != nil {
		logger.WithFields(logging.Fields{
			"transaction_id": txn.ID,
			"error":          err.Error(),
		}).Error("Razorpay order creation failed")
		c.JSON(http.StatusBadGateway, bursarapi.ErrorResponse{Error: "Payment provider unavailable"})
		return
	}

	if err := store.SetProviderRef(c.Request.Context(), txn.ID, razorpayAdapter.Name(), handle.Ref); err != nil {
		logger.WithError(err).Error("Failed to record provider reference")
		c.JSON(http.StatusInternalServerError, bursarapi.ErrorResponse{Error: "Failed to record checkout"})
		return
	}

	bursarMetrics.CheckoutsCreated.WithLabelValues("razorpay", string(plan)).Inc()

	c.JSON(http.StatusOK, bursarapi.RazorpayCheckoutResponse{
		Success:       true,
		OrderID:       handle.Ref,
		AmountCents:   handle.AmountSubunits,
		Currency:      handle.Currency,
		TransactionID: txn.ID,
	})
}
