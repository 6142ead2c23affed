// Package ledger persists credit transactions and user balances. The
// transaction row's payment flag is the single compare-and-set that
// guarantees a payment is credited at most once; the credit_applications
// table records the balance increment so a crash between the two steps
// is repairable.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bursar/internal/pricing"
	"bursar/pkg/logging"
	"bursar/pkg/models"
)

// ErrNotFound is returned when a transaction or user does not exist.
var ErrNotFound = errors.New("not found")

// Store reads and writes credit transactions.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// NewStore returns a Store backed by db.
func NewStore(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Create opens a pending transaction for userID, snapshotting the current
// price of plan. The user must exist.
func (s *Store) Create(ctx context.Context, userID string, plan pricing.Plan) (*models.CreditTransaction, error) {
	price, err := pricing.Quote(plan)
	if err != nil {
		return nil, err
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM bursar.users WHERE id = $1)", userID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	txn := &models.CreditTransaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Plan:        string(plan),
		Credits:     price.Credits,
		AmountCents: price.AmountCents,
		Currency:    price.Currency,
		Status:      models.TransactionPending,
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO bursar.credit_transactions (id, user_id, plan, credits, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		txn.ID, txn.UserID, txn.Plan, txn.Credits, txn.AmountCents, txn.Currency, txn.Status,
	).Scan(&txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"transaction_id": txn.ID,
		"user_id":        userID,
		"plan":           plan,
		"credits":        price.Credits,
	}).Info("Created credit transaction")

	return txn, nil
}

const txnColumns = `id, user_id, plan, credits, amount_cents, currency, provider, provider_ref, payment, status, created_at, updated_at`

func scanTxn(row *sql.Row) (*models.CreditTransaction, error) {
	var txn models.CreditTransaction
	err := row.Scan(&txn.ID, &txn.UserID, &txn.Plan, &txn.Credits, &txn.AmountCents,
		&txn.Currency, &txn.Provider, &txn.ProviderRef, &txn.Payment, &txn.Status,
		&txn.CreatedAt, &txn.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return &txn, nil
}

// Get returns the transaction with the given id.
func (s *Store) Get(ctx context.Context, id string) (*models.CreditTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM bursar.credit_transactions WHERE id = $1`, id)
	return scanTxn(row)
}

// GetByProviderRef returns the transaction tied to a provider-side reference
// such as a checkout session or order id.
func (s *Store) GetByProviderRef(ctx context.Context, provider, ref string) (*models.CreditTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM bursar.credit_transactions WHERE provider = $1 AND provider_ref = $2`,
		provider, ref)
	return scanTxn(row)
}

// SetProviderRef records the provider-side reference after checkout creation.
func (s *Store) SetProviderRef(ctx context.Context, id, provider, ref string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bursar.credit_transactions
		SET provider = $2, provider_ref = $3, updated_at = NOW()
		WHERE id = $1`,
		id, provider, ref)
	if err != nil {
		return fmt.Errorf("failed to set provider ref: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaid flips the payment flag on a transaction if and only if it is not
// already set. It reports applied=true exactly once per transaction no
// matter how many verifications race; the loser observes applied=false and
// the current row. This is the sole gate in front of crediting.
func (s *Store) MarkPaid(ctx context.Context, id string) (applied bool, txn *models.CreditTransaction, err error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE bursar.credit_transactions
		SET payment = TRUE, status = $2, updated_at = NOW()
		WHERE id = $1 AND payment = FALSE
		RETURNING `+txnColumns,
		id, models.TransactionCredited)

	txn, err = scanTxn(row)
	if err == nil {
		return true, txn, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, nil, fmt.Errorf("failed to mark paid: %w", err)
	}

	// No row updated: either the flag was already set or the id is bogus.
	txn, err = s.Get(ctx, id)
	if err != nil {
		return false, nil, err
	}
	return false, txn, nil
}

// ExpireStale flips pending, unpaid transactions older than ttl to expired.
// Paid transactions are never touched; the payment flag stays authoritative
// even for rows expired before a late verification arrives.
func (s *Store) ExpireStale(ctx context.Context, ttl time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bursar.credit_transactions
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND payment = FALSE AND created_at < NOW() - $3 * INTERVAL '1 second'`,
		models.TransactionExpired, models.TransactionPending, int64(ttl.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("failed to expire transactions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n > 0 {
		s.logger.WithFields(logging.Fields{"count": n}).Info("Expired stale transactions")
	}
	return n, nil
}
