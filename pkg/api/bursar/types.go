// Package bursar defines the wire types of the Bursar HTTP API.
package bursar

// CheckoutRequest initiates a credit purchase for the authenticated user.
type CheckoutRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

// StripeCheckoutResponse is returned from POST /payments/stripe.
type StripeCheckoutResponse struct {
	Success       bool   `json:"success"`
	SessionURL    string `json:"session_url,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message,omitempty"`
}

// RazorpayCheckoutResponse is returned from POST /payments/razorpay. The
// client hands OrderID to the Razorpay checkout widget.
type RazorpayCheckoutResponse struct {
	Success       bool   `json:"success"`
	OrderID       string `json:"order_id,omitempty"`
	AmountCents   int64  `json:"amount_cents,omitempty"`
	Currency      string `json:"currency,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message,omitempty"`
}

// StripeVerifyRequest is the client-side verification callback after the
// Stripe redirect. Success mirrors the query flag Stripe appended to the
// return URL; the server never trusts it for crediting.
type StripeVerifyRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	Success       bool   `json:"success"`
}

// RazorpayVerifyRequest is the client-side verification callback carrying
// the provider's order id.
type RazorpayVerifyRequest struct {
	OrderID string `json:"razorpay_order_id" binding:"required"`
}

// VerifyResponse reports the reconciliation outcome.
type VerifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Balance int64  `json:"balance,omitempty"`
}

// PlanInfo describes one purchasable credit pack.
type PlanInfo struct {
	ID          string `json:"id"`
	Credits     int64  `json:"credits"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// PlansResponse lists the pricing table.
type PlansResponse struct {
	Plans []PlanInfo `json:"plans"`
}

// CreditsResponse reports the authenticated user's balance.
type CreditsResponse struct {
	Success bool  `json:"success"`
	Credits int64 `json:"credits"`
}

// ErrorResponse represents a standard error response from Bursar
type ErrorResponse struct {
	Error string `json:"error"`
}
