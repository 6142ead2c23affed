package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"bursar/pkg/logging"
)

// Balances applies credit grants to user accounts.
type Balances struct {
	db     *sql.DB
	logger logging.Logger
}

// NewBalances returns a Balances backed by db.
func NewBalances(db *sql.DB, logger logging.Logger) *Balances {
	return &Balances{db: db, logger: logger}
}

// Balance returns the current credit balance for a user.
func (b *Balances) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := b.db.QueryRowContext(ctx,
		"SELECT credit_balance FROM bursar.users WHERE id = $1", userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// ApplyCredit grants the credits for transactionID to userID exactly once.
// The credit_applications row is the idempotency key: the insert and the
// balance increment commit atomically, so retries after any observed state
// are safe. Reports applied=false without touching the balance when the
// grant was already recorded.
func (b *Balances) ApplyCredit(ctx context.Context, transactionID, userID string, credits int64) (applied bool, newBalance int64, err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO bursar.credit_applications (transaction_id, user_id, credits)
		VALUES ($1, $2, $3)
		ON CONFLICT (transaction_id) DO NOTHING`,
		transactionID, userID, credits)
	if err != nil {
		return false, 0, fmt.Errorf("failed to record credit application: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		// Already credited by an earlier attempt.
		return false, 0, nil
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE bursar.users
		SET credit_balance = credit_balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING credit_balance`,
		userID, credits).Scan(&newBalance)
	if err == sql.ErrNoRows {
		return false, 0, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment balance: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE bursar.credit_applications SET balance_after = $2 WHERE transaction_id = $1",
		transactionID, newBalance)
	if err != nil {
		return false, 0, fmt.Errorf("failed to record balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("failed to commit credit: %w", err)
	}

	b.logger.WithFields(logging.Fields{
		"transaction_id": transactionID,
		"user_id":        userID,
		"credits":        credits,
		"balance":        newBalance,
	}).Info("Applied credit")

	return true, newBalance, nil
}
