package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/apierrors"
	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/ledger"
	"github.com/dome/adamant-tradebot/internal/models"
)

// fakeAdapter implements exchange.Adapter with a scripted
// GetOrderDetails response per call; every other method panics if
// exercised, since reconciler.Run never calls them.
type fakeAdapter struct {
	exchange.Adapter
	details map[string]exchange.OrderDetail
	errs    map[string]error
}

func (f *fakeAdapter) GetOrderDetails(ctx context.Context, id, pair string) (exchange.OrderDetail, error) {
	if err, ok := f.errs[id]; ok {
		return exchange.OrderDetail{}, err
	}
	return f.details[id], nil
}

func openOrderRows() *sqlmock.Rows {
	cols := []string{
		"id", "exchange_order_id", "pair", "side", "type", "purpose", "state",
		"created_at", "expires_at", "updated_at",
		"price", "base_amount", "quote_amount", "base_filled", "quote_filled",
		"base_remaining", "quote_remaining",
		"processed", "executed", "cancelled", "closed",
		"ladder_index", "ladder_state", "not_placed_reason", "closure_cause", "missed_observations",
	}
	return sqlmock.NewRows(cols)
}

func TestReconciler_Filled(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := openOrderRows().AddRow(
		1, "ex-1", "BTC/USDT", models.SideBuy, models.OrderTypeLimit, models.PurposeOrderBook, models.StateOpen,
		now, nil, now,
		"100", "1", "0", "0", "0", "1", "0",
		true, false, false, false,
		nil, models.LadderPending, "", "", 0,
	)
	mock.ExpectQuery(`SELECT (.|\n)* FROM ledger_orders WHERE pair = \$1 AND closed = false`).WillReturnRows(rows)
	mock.ExpectExec(`UPDATE ledger_orders SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	adapter := &fakeAdapter{details: map[string]exchange.OrderDetail{
		"ex-1": {Status: exchange.DetailFilled, FilledBase: decimal.NewFromInt(1), FilledQuote: decimal.NewFromInt(100)},
	}}

	r := New(ledger.New(db), adapter, zap.NewNop().Sugar())
	res, err := r.Run(context.Background(), models.PurposeOrderBook, "BTC/USDT")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Filled != 1 || res.Checked != 1 {
		t.Errorf("unexpected result: %+v", res)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReconciler_UnknownTwiceCloses(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := openOrderRows().AddRow(
		1, "ex-1", "BTC/USDT", models.SideBuy, models.OrderTypeLimit, models.PurposeOrderBook, models.StateOpen,
		now, nil, now,
		"100", "1", "0", "0", "0", "1", "0",
		true, false, false, false,
		nil, models.LadderPending, "", "", 1, // already missed once
	)
	mock.ExpectQuery(`SELECT (.|\n)* FROM ledger_orders WHERE pair = \$1 AND closed = false`).WillReturnRows(rows)
	mock.ExpectExec(`UPDATE ledger_orders SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	adapter := &fakeAdapter{details: map[string]exchange.OrderDetail{
		"ex-1": {Status: exchange.DetailUnknown},
	}}

	r := New(ledger.New(db), adapter, zap.NewNop().Sugar())
	res, err := r.Run(context.Background(), models.PurposeOrderBook, "BTC/USDT")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Cancelled != 1 {
		t.Errorf("expected second unknown observation to close the order, got %+v", res)
	}
}

func TestReconciler_DetailNewResetsMissedObservations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := openOrderRows().AddRow(
		1, "ex-1", "BTC/USDT", models.SideBuy, models.OrderTypeLimit, models.PurposeOrderBook, models.StateOpen,
		now, nil, now,
		"100", "1", "0", "0", "0", "1", "0",
		true, false, false, false,
		nil, models.LadderPending, "", "", 1, // one prior miss, not consecutive with the next
	)
	mock.ExpectQuery(`SELECT (.|\n)* FROM ledger_orders WHERE pair = \$1 AND closed = false`).WillReturnRows(rows)
	mock.ExpectExec(`UPDATE ledger_orders SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	adapter := &fakeAdapter{details: map[string]exchange.OrderDetail{
		"ex-1": {Status: exchange.DetailNew},
	}}

	r := New(ledger.New(db), adapter, zap.NewNop().Sugar())
	res, err := r.Run(context.Background(), models.PurposeOrderBook, "BTC/USDT")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Cancelled != 0 {
		t.Errorf("a resting DetailNew observation should not close the order, got %+v", res)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReconciler_TransientLeavesUntouched(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := openOrderRows().AddRow(
		1, "ex-1", "BTC/USDT", models.SideBuy, models.OrderTypeLimit, models.PurposeOrderBook, models.StateOpen,
		now, nil, now,
		"100", "1", "0", "0", "0", "1", "0",
		true, false, false, false,
		nil, models.LadderPending, "", "", 0,
	)
	mock.ExpectQuery(`SELECT (.|\n)* FROM ledger_orders WHERE pair = \$1 AND closed = false`).WillReturnRows(rows)

	adapter := &fakeAdapter{errs: map[string]error{
		"ex-1": &apierrors.TransientAPIError{Exchange: "bitget", Op: "getOrderDetails"},
	}}

	r := New(ledger.New(db), adapter, zap.NewNop().Sugar())
	res, err := r.Run(context.Background(), models.PurposeOrderBook, "BTC/USDT")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Transient != 1 {
		t.Errorf("expected transient error to be counted and the row left untouched, got %+v", res)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
