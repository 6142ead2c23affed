package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	balances := NewBalances(db, testLogger())

	mock.ExpectQuery("SELECT credit_balance FROM bursar.users").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}).AddRow(250))

	got, err := balances.Balance(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if got != 250 {
		t.Errorf("expected balance 250, got %d", got)
	}

	mock.ExpectQuery("SELECT credit_balance FROM bursar.users").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}))

	if _, err := balances.Balance(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyCreditFirstTime(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	balances := NewBalances(db, testLogger())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bursar.credit_applications").
		WithArgs("txn-1", "user-1", int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE bursar.users").
		WithArgs("user-1", int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"credit_balance"}).AddRow(100))
	mock.ExpectExec("UPDATE bursar.credit_applications SET balance_after").
		WithArgs("txn-1", int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, balance, err := balances.ApplyCredit(context.Background(), "txn-1", "user-1", 100)
	if err != nil {
		t.Fatalf("ApplyCredit: %v", err)
	}
	if !applied {
		t.Error("expected applied=true on first application")
	}
	if balance != 100 {
		t.Errorf("expected balance 100, got %d", balance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestApplyCreditIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	balances := NewBalances(db, testLogger())

	// Conflict on the idempotency key: the balance must not be touched.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bursar.credit_applications").
		WithArgs("txn-1", "user-1", int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	applied, _, err := balances.ApplyCredit(context.Background(), "txn-1", "user-1", 100)
	if err != nil {
		t.Fatalf("ApplyCredit: %v", err)
	}
	if applied {
		t.Error("expected applied=false on repeat application")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestApplyCreditRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	balances := NewBalances(db, testLogger())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bursar.credit_applications").
		WithArgs("txn-1", "user-1", int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE bursar.users").
		WithArgs("user-1", int64(100)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	if _, _, err := balances.ApplyCredit(context.Background(), "txn-1", "user-1", 100); err == nil {
		t.Fatal("expected error when balance update fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
