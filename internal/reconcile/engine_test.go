package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bursar/internal/providers"
	"bursar/pkg/models"
)

// fakeLedger implements Ledger in memory with the same atomicity contract
// as the SQL store: exactly one MarkPaid call per transaction wins.
type fakeLedger struct {
	mu   sync.Mutex
	txns map[string]*models.CreditTransaction
}

func newFakeLedger(txns ...*models.CreditTransaction) *fakeLedger {
	l := &fakeLedger{txns: make(map[string]*models.CreditTransaction)}
	for _, t := range txns {
		l.txns[t.ID] = t
	}
	return l
}

func (l *fakeLedger) Get(ctx context.Context, id string) (*models.CreditTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	txn, ok := l.txns[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *txn
	return &cp, nil
}

func (l *fakeLedger) MarkPaid(ctx context.Context, id string) (bool, *models.CreditTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	txn, ok := l.txns[id]
	if !ok {
		return false, nil, errors.New("not found")
	}
	if txn.Payment {
		cp := *txn
		return false, &cp, nil
	}
	txn.Payment = true
	txn.Status = models.TransactionCredited
	cp := *txn
	return true, &cp, nil
}

// fakeBalances implements BalanceStore with a per-transaction idempotency
// key, mirroring the credit_applications table.
type fakeBalances struct {
	mu       sync.Mutex
	balances map[string]int64
	applied  map[string]bool
	failNext int
}

func newFakeBalances() *fakeBalances {
	return &fakeBalances{balances: make(map[string]int64), applied: make(map[string]bool)}
}

func (b *fakeBalances) ApplyCredit(ctx context.Context, txnID, userID string, credits int64) (bool, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext > 0 {
		b.failNext--
		return false, 0, errors.New("balance store unavailable")
	}
	if b.applied[txnID] {
		return false, 0, nil
	}
	b.applied[txnID] = true
	b.balances[userID] += credits
	return true, b.balances[userID], nil
}

func testEngine(ledger Ledger, balances BalanceStore) *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewEngine(ledger, balances, logger)
}

func pendingTxn(id, userID string, credits int64) *models.CreditTransaction {
	return &models.CreditTransaction{
		ID:      id,
		UserID:  userID,
		Plan:    "basic",
		Credits: credits,
		Status:  models.TransactionPending,
	}
}

func TestReconcilePaidCreditsOnce(t *testing.T) {
	ledger := newFakeLedger(pendingTxn("txn-1", "user-1", 100))
	balances := newFakeBalances()
	engine := testEngine(ledger, balances)

	paid := &providers.VerificationResult{Status: providers.StatusPaid, Ref: "cs_1"}

	result, err := engine.Reconcile(context.Background(), "txn-1", paid)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, result.Outcome)
	assert.Equal(t, int64(100), result.Balance)

	// Same verification again is a clean no-op.
	result, err = engine.Reconcile(context.Background(), "txn-1", paid)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyCredited, result.Outcome)
	assert.Equal(t, int64(100), balances.balances["user-1"])
}

func TestReconcileConcurrentVerifications(t *testing.T) {
	ledger := newFakeLedger(pendingTxn("txn-1", "user-1", 100))
	balances := newFakeBalances()
	engine := testEngine(ledger, balances)

	paid := &providers.VerificationResult{Status: providers.StatusPaid, Ref: "cs_1"}

	const racers = 16
	outcomes := make(chan Outcome, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := engine.Reconcile(context.Background(), "txn-1", paid)
			if err != nil {
				t.Error(err)
				return
			}
			outcomes <- result.Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	credited := 0
	for o := range outcomes {
		if o == OutcomeCredited {
			credited++
		}
	}
	assert.Equal(t, 1, credited, "exactly one racer must win")
	assert.Equal(t, int64(100), balances.balances["user-1"], "credits granted exactly once")
}

func TestReconcileNotPaidIsNoOp(t *testing.T) {
	ledger := newFakeLedger(pendingTxn("txn-1", "user-1", 100))
	balances := newFakeBalances()
	engine := testEngine(ledger, balances)

	result, err := engine.Reconcile(context.Background(), "txn-1",
		&providers.VerificationResult{Status: providers.StatusNotPaid})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDenied, result.Outcome)
	assert.Zero(t, balances.balances["user-1"])
	assert.False(t, ledger.txns["txn-1"].Payment, "denial must not flip the payment flag")
}

func TestReconcileUnknownThenPaid(t *testing.T) {
	ledger := newFakeLedger(pendingTxn("txn-1", "user-1", 500))
	balances := newFakeBalances()
	engine := testEngine(ledger, balances)

	result, err := engine.Reconcile(context.Background(), "txn-1",
		&providers.VerificationResult{Status: providers.StatusUnknown})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknown, result.Outcome)

	// A later definitive answer still credits normally.
	result, err = engine.Reconcile(context.Background(), "txn-1",
		&providers.VerificationResult{Status: providers.StatusPaid})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, result.Outcome)
	assert.Equal(t, int64(500), result.Balance)
}

func TestReconcilePartialFailureThenRepair(t *testing.T) {
	ledger := newFakeLedger(pendingTxn("txn-1", "user-1", 100))
	balances := newFakeBalances()
	balances.failNext = 1
	engine := testEngine(ledger, balances)

	paid := &providers.VerificationResult{Status: providers.StatusPaid, Ref: "cs_1"}

	_, err := engine.Reconcile(context.Background(), "txn-1", paid)
	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "txn-1", pf.TransactionID)
	assert.Equal(t, "user-1", pf.UserID)
	assert.True(t, ledger.txns["txn-1"].Payment, "payment stays recorded across the failure")

	// Retrying the same verification completes the grant.
	result, err := engine.Reconcile(context.Background(), "txn-1", paid)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, result.Outcome)
	assert.Equal(t, int64(100), balances.balances["user-1"])
}

func TestReconcileUnknownTransaction(t *testing.T) {
	engine := testEngine(newFakeLedger(), newFakeBalances())
	_, err := engine.Reconcile(context.Background(), "nope",
		&providers.VerificationResult{Status: providers.StatusPaid})
	assert.Error(t, err)
}
