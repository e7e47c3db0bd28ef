package ledger

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/dome/adamant-tradebot/internal/models"
)

func TestLedgerInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	l := New(db)

	order := &models.Order{
		Pair:       "BTC/USDT",
		Side:       models.SideBuy,
		Type:       models.OrderTypeLimit,
		Purpose:    models.PurposeOrderBook,
		State:      models.StateNew,
		Price:      decimal.NewFromFloat(100.5),
		BaseAmount: decimal.NewFromFloat(1.0),
	}

	mock.ExpectQuery(`INSERT INTO ledger_orders`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	if err := l.Insert(context.Background(), order); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if order.InternalID != 42 {
		t.Errorf("expected InternalID 42, got %d", order.InternalID)
	}
	if order.CreatedAt.IsZero() {
		t.Error("CreatedAt was not stamped")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLedgerUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	l := New(db)

	closed := true
	cause := models.ClosureExpired

	mock.ExpectExec(`UPDATE ledger_orders SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = l.Update(context.Background(), 42, Patch{Closed: &closed, ClosureCause: &cause})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLedgerUpdateNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	l := New(db)

	closed := true
	mock.ExpectExec(`UPDATE ledger_orders SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = l.Update(context.Background(), 999, Patch{Closed: &closed})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLedgerUpdateNoOp(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	l := New(db)
	if err := l.Update(context.Background(), 1, Patch{}); err != nil {
		t.Errorf("empty patch should be a no-op, got error: %v", err)
	}
}

func TestLedgerFindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	l := New(db)
	now := time.Now()

	cols := []string{
		"id", "exchange_order_id", "pair", "side", "type", "purpose", "state",
		"created_at", "expires_at", "updated_at",
		"price", "base_amount", "quote_amount", "base_filled", "quote_filled",
		"base_remaining", "quote_remaining",
		"processed", "executed", "cancelled", "closed",
		"ladder_index", "ladder_state", "not_placed_reason", "closure_cause", "missed_observations",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		42, "ex-1", "BTC/USDT", models.SideBuy, models.OrderTypeLimit, models.PurposeOrderBook, models.StateOpen,
		now, nil, now,
		"100.5", "1.0", "0", "0", "0",
		"1.0", "0",
		true, false, false, false,
		nil, models.LadderPending, "", "",
		0,
	)
	mock.ExpectQuery(`SELECT (.|\n)* FROM ledger_orders WHERE id = \$1`).WithArgs(int64(42)).WillReturnRows(rows)

	o, err := l.FindByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if o.Pair != "BTC/USDT" || o.InternalID != 42 {
		t.Errorf("unexpected order returned: %+v", o)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLedgerFindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	l := New(db)
	mock.ExpectQuery(`SELECT (.|\n)* FROM ledger_orders WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)

	_, err = l.FindByID(context.Background(), 7)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
