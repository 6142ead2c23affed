package reconcile

import (
	"context"
	"database/sql"
	"time"

	"bursar/pkg/logging"
)

// Sweeper periodically repairs partially failed credits and expires stale
// pending transactions. It is the safety net for the window between the
// payment flip and the balance increment.
type Sweeper struct {
	db       *sql.DB
	balances BalanceStore
	expirer  interface {
		ExpireStale(ctx context.Context, ttl time.Duration) (int64, error)
	}
	logger   logging.Logger
	interval time.Duration
	ttl      time.Duration
	stopCh   chan struct{}
}

// SweeperConfig configures the background sweep.
type SweeperConfig struct {
	// Interval between sweeps. Default 30 seconds.
	Interval time.Duration
	// TTL after which unpaid pending transactions are expired. Default 24h.
	TTL time.Duration
}

// NewSweeper creates a sweeper over the given stores. expirer is the
// transaction store; balances applies the repair grants.
func NewSweeper(db *sql.DB, balances BalanceStore, expirer interface {
	ExpireStale(ctx context.Context, ttl time.Duration) (int64, error)
}, logger logging.Logger, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Sweeper{
		db:       db,
		balances: balances,
		expirer:  expirer,
		logger:   logger,
		interval: cfg.Interval,
		ttl:      cfg.TTL,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop. It returns when ctx is cancelled or Stop is
// called.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting reconciliation sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopping due to context cancellation")
			return
		case <-s.stopCh:
			s.logger.Info("Sweeper stopping")
			return
		case <-ticker.C:
			s.RepairPartialCredits(ctx)
			s.ExpireStale(ctx)
		}
	}
}

// Stop stops the sweeper.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

// RepairPartialCredits finds transactions whose payment flag is set but
// whose credit grant never landed, and re-applies the grant. ApplyCredit's
// idempotency key makes this safe against a concurrent verification doing
// the same repair.
func (s *Sweeper) RepairPartialCredits(ctx context.Context) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.user_id, t.credits
		FROM bursar.credit_transactions t
		LEFT JOIN bursar.credit_applications a ON a.transaction_id = t.id
		WHERE t.payment = TRUE AND a.transaction_id IS NULL
		ORDER BY t.updated_at ASC
		LIMIT 50
	`)
	if err != nil {
		s.logger.WithError(err).Error("Failed to query partially credited transactions")
		return
	}
	defer rows.Close()

	type pending struct {
		id      string
		userID  string
		credits int64
	}
	var work []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.userID, &p.credits); err != nil {
			s.logger.WithError(err).Error("Failed to scan partial credit row")
			continue
		}
		work = append(work, p)
	}
	if err := rows.Err(); err != nil {
		s.logger.WithError(err).Error("Failed to iterate partial credit rows")
		return
	}

	for _, p := range work {
		applied, balance, err := s.balances.ApplyCredit(ctx, p.id, p.userID, p.credits)
		if err != nil {
			s.logger.WithFields(logging.Fields{
				"transaction_id": p.id,
				"error":          err.Error(),
			}).Error("Failed to repair partial credit")
			continue
		}
		if applied {
			s.logger.WithFields(logging.Fields{
				"transaction_id": p.id,
				"user_id":        p.userID,
				"credits":        p.credits,
				"balance":        balance,
			}).Warn("Repaired partially credited transaction")
		}
	}
}

// ExpireStale marks old unpaid pending transactions as expired. The payment
// flag is untouched, so a late settlement on an expired transaction still
// credits exactly once.
func (s *Sweeper) ExpireStale(ctx context.Context) {
	if _, err := s.expirer.ExpireStale(ctx, s.ttl); err != nil {
		s.logger.WithError(err).Error("Failed to expire stale transactions")
	}
}
