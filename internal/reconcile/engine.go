// Package reconcile turns provider verification results into credited
// balances. The engine guarantees a paid transaction is credited at most
// once regardless of how many webhooks, redirects, and retries race over
// it, and surfaces the one window where money was taken but credits are
// not yet visible so the sweeper can repair it.
package reconcile

import (
	"context"
	"fmt"

	"bursar/internal/providers"
	"bursar/pkg/logging"
	"bursar/pkg/models"
)

// Ledger is the slice of the transaction store the engine needs.
type Ledger interface {
	Get(ctx context.Context, id string) (*models.CreditTransaction, error)
	MarkPaid(ctx context.Context, id string) (applied bool, txn *models.CreditTransaction, err error)
}

// BalanceStore applies idempotent credit grants.
type BalanceStore interface {
	ApplyCredit(ctx context.Context, transactionID, userID string, credits int64) (applied bool, newBalance int64, err error)
}

// Outcome classifies what a reconciliation attempt concluded.
type Outcome string

const (
	// OutcomeCredited means this attempt won the race and granted credits.
	OutcomeCredited Outcome = "credited"
	// OutcomeAlreadyCredited means an earlier attempt granted them.
	OutcomeAlreadyCredited Outcome = "already_credited"
	// OutcomeDenied means the provider says the payment did not settle.
	OutcomeDenied Outcome = "denied"
	// OutcomeUnknown means no definitive answer was available; retry later.
	OutcomeUnknown Outcome = "unknown"
)

// Result of a reconciliation attempt.
type Result struct {
	Outcome Outcome
	// Balance is the user's balance after crediting; only meaningful for
	// OutcomeCredited.
	Balance int64
	Txn     *models.CreditTransaction
}

// PartialFailureError reports that payment was recorded on the transaction
// but the balance increment failed. The money is taken; the sweeper (or the
// next verification of the same transaction) completes the grant.
type PartialFailureError struct {
	TransactionID string
	UserID        string
	Err           error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("payment recorded for transaction %s but crediting failed: %v", e.TransactionID, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// Engine reconciles provider payment state with the ledger.
type Engine struct {
	ledger   Ledger
	balances BalanceStore
	logger   logging.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine(ledger Ledger, balances BalanceStore, logger logging.Logger) *Engine {
	return &Engine{ledger: ledger, balances: balances, logger: logger}
}

// Reconcile drives one verification result to its conclusion for the given
// transaction. Concurrent calls for the same transaction are safe: the
// ledger's conditional payment flip picks exactly one winner, and the
// balance store's idempotency key makes the credit step repeatable.
func (e *Engine) Reconcile(ctx context.Context, txnID string, verification *providers.VerificationResult) (*Result, error) {
	switch verification.Status {
	case providers.StatusPaid:
		return e.credit(ctx, txnID)
	case providers.StatusNotPaid:
		txn, err := e.ledger.Get(ctx, txnID)
		if err != nil {
			return nil, err
		}
		// Unpaid per the provider. Nothing is flipped; if the provider later
		// reports paid, the transaction still credits exactly once.
		return &Result{Outcome: OutcomeDenied, Txn: txn}, nil
	default:
		txn, err := e.ledger.Get(ctx, txnID)
		if err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeUnknown, Txn: txn}, nil
	}
}

func (e *Engine) credit(ctx context.Context, txnID string) (*Result, error) {
	applied, txn, err := e.ledger.MarkPaid(ctx, txnID)
	if err != nil {
		return nil, err
	}

	// The credit step runs on both branches. On the winning branch it grants
	// the credits; on the losing branch it is a no-op unless the winner
	// crashed between the two steps, in which case this repairs the gap.
	creditApplied, balance, err := e.balances.ApplyCredit(ctx, txn.ID, txn.UserID, txn.Credits)
	if err != nil {
		if applied {
			e.logger.WithFields(logging.Fields{
				"transaction_id": txn.ID,
				"user_id":        txn.UserID,
				"error":          err.Error(),
			}).Error("Payment recorded but crediting failed")
			return nil, &PartialFailureError{TransactionID: txn.ID, UserID: txn.UserID, Err: err}
		}
		return nil, err
	}

	if creditApplied {
		e.logger.WithFields(logging.Fields{
			"transaction_id": txn.ID,
			"user_id":        txn.UserID,
			"credits":        txn.Credits,
		}).Info("Transaction credited")
		return &Result{Outcome: OutcomeCredited, Balance: balance, Txn: txn}, nil
	}

	return &Result{Outcome: OutcomeAlreadyCredited, Txn: txn}, nil
}
