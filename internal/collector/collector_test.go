package collector

import (
	"context"
	"errors"
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

const findOpenQuery = `SELECT (.|\n)* FROM ledger_orders WHERE pair = \$1 AND closed = false`

type fakeAdapter struct {
	exchange.Adapter
	cancelOutcomes map[string]exchange.CancelOutcome
	cancelErrs     map[string]error
	openOrders     []exchange.OpenOrder
	openOrdersErr  error
}

func (f *fakeAdapter) CancelOrder(ctx context.Context, id string, side models.Side, pair string) (exchange.CancelOutcome, error) {
	if err, ok := f.cancelErrs[id]; ok {
		return exchange.CancelUnknown, err
	}
	return f.cancelOutcomes[id], nil
}

func (f *fakeAdapter) GetOpenOrders(ctx context.Context, pair string) ([]exchange.OpenOrder, error) {
	return f.openOrders, f.openOrdersErr
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

func TestCollector_CancelsMatchingOrders(t *testing.T) {
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
	mock.ExpectQuery(findOpenQuery).WillReturnRows(rows)
	mock.ExpectExec(`UPDATE ledger_orders SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	adapter := &fakeAdapter{cancelOutcomes: map[string]exchange.CancelOutcome{"ex-1": exchange.CancelledOK}}
	c := New(ledger.New(db), adapter, nil, zap.NewNop().Sugar())

	res := c.Run(context.Background(), Selector{
		Purposes: []models.Purpose{models.PurposeOrderBook},
		Pair:     "BTC/USDT",
	}, "userCommand")

	if res.Attempted != 1 || res.Cancelled != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCollector_AlreadyClosedStillMarksLedger(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := openOrderRows().AddRow(
		1, "ex-1", "BTC/USDT", models.SideSell, models.OrderTypeLimit, models.PurposeLiquidity, models.StateOpen,
		now, nil, now,
		"100", "1", "0", "0", "0", "1", "0",
		true, false, false, false,
		nil, models.LadderPending, "", "", 0,
	)
	mock.ExpectQuery(findOpenQuery).WillReturnRows(rows)
	mock.ExpectExec(`UPDATE ledger_orders SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	adapter := &fakeAdapter{cancelOutcomes: map[string]exchange.CancelOutcome{"ex-1": exchange.CancelAlready}}
	c := New(ledger.New(db), adapter, nil, zap.NewNop().Sugar())

	res := c.Run(context.Background(), Selector{
		Purposes: []models.Purpose{models.PurposeLiquidity},
		Pair:     "BTC/USDT",
	}, "expired")

	if res.AlreadyClosed != 1 {
		t.Errorf("expected AlreadyClosed=1, got %+v", res)
	}
}

func TestCollector_TransientLeftOpenWithoutForce(t *testing.T) {
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
	mock.ExpectQuery(findOpenQuery).WillReturnRows(rows)

	adapter := &fakeAdapter{cancelErrs: map[string]error{
		"ex-1": &apierrors.TransientAPIError{Exchange: "bitget", Op: "cancelOrder"},
	}}
	c := New(ledger.New(db), adapter, nil, zap.NewNop().Sugar())

	res := c.Run(context.Background(), Selector{
		Purposes: []models.Purpose{models.PurposeOrderBook},
		Pair:     "BTC/USDT",
	}, "expired")

	if res.Failed != 1 || res.Cancelled != 0 {
		t.Errorf("expected the transient failure to be counted without a ledger write, got %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCollector_ForceClosesDespiteError(t *testing.T) {
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
	mock.ExpectQuery(findOpenQuery).WillReturnRows(rows)
	mock.ExpectExec(`UPDATE ledger_orders SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	adapter := &fakeAdapter{cancelErrs: map[string]error{
		"ex-1": errors.New("exchange unreachable"),
	}}
	c := New(ledger.New(db), adapter, nil, zap.NewNop().Sugar())

	res := c.Run(context.Background(), Selector{
		Purposes: []models.Purpose{models.PurposeOrderBook},
		Pair:     "BTC/USDT",
		Force:    true,
	}, "userCommand")

	if res.Cancelled != 1 {
		t.Errorf("expected force cancel to mark the ledger row closed anyway, got %+v", res)
	}
}

func TestCollector_UnknownModeSweepsUntrackedOrders(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	rows := openOrderRows()
	mock.ExpectQuery(findOpenQuery).WillReturnRows(rows)

	adapter := &fakeAdapter{
		openOrders:     []exchange.OpenOrder{{ID: "ghost-1", Pair: "BTC/USDT", Side: models.SideSell}},
		cancelOutcomes: map[string]exchange.CancelOutcome{"ghost-1": exchange.CancelledOK},
	}
	c := New(ledger.New(db), adapter, nil, zap.NewNop().Sugar())

	res := c.Run(context.Background(), Selector{Pair: "BTC/USDT", Unknown: true}, "unknownSweep")

	if res.Attempted != 1 || res.Cancelled != 1 {
		t.Errorf("expected the untracked order to be cancelled, got %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCollector_ExpiredOnlySkipsUnexpiredOrders(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	future := now.Add(time.Hour)
	rows := openOrderRows().AddRow(
		1, "ex-1", "BTC/USDT", models.SideBuy, models.OrderTypeLimit, models.PurposeOrderBook, models.StateOpen,
		now, &future, now,
		"100", "1", "0", "0", "0", "1", "0",
		true, false, false, false,
		nil, models.LadderPending, "", "", 0,
	)
	mock.ExpectQuery(findOpenQuery).WillReturnRows(rows)

	adapter := &fakeAdapter{}
	c := New(ledger.New(db), adapter, nil, zap.NewNop().Sugar())

	res := c.Run(context.Background(), Selector{
		Purposes:    []models.Purpose{models.PurposeOrderBook},
		Pair:        "BTC/USDT",
		ExpiredOnly: true,
	}, "expired")

	if res.Attempted != 0 {
		t.Errorf("expected an unexpired order to be skipped, got %+v", res)
	}
}

func TestCollector_OutOfBandSelectsOnlyOutsidePrices(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := openOrderRows().AddRow(
		1, "ex-1", "BTC/USDT", models.SideBuy, models.OrderTypeLimit, models.PurposeOrderBook, models.StateOpen,
		now, nil, now,
		"200", "1", "0", "0", "0", "1", "0",
		true, false, false, false,
		nil, models.LadderPending, "", "", 0,
	).AddRow(
		2, "ex-2", "BTC/USDT", models.SideBuy, models.OrderTypeLimit, models.PurposeOrderBook, models.StateOpen,
		now, nil, now,
		"100", "1", "0", "0", "0", "1", "0",
		true, false, false, false,
		nil, models.LadderPending, "", "", 0,
	)
	mock.ExpectQuery(findOpenQuery).WillReturnRows(rows)
	mock.ExpectExec(`UPDATE ledger_orders SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	adapter := &fakeAdapter{cancelOutcomes: map[string]exchange.CancelOutcome{"ex-1": exchange.CancelledOK}}
	c := New(ledger.New(db), adapter, nil, zap.NewNop().Sugar())

	res := c.Run(context.Background(), Selector{
		Purposes:  []models.Purpose{models.PurposeOrderBook},
		Pair:      "BTC/USDT",
		OutOfBand: &Band{Low: decimal.RequireFromString("90"), High: decimal.RequireFromString("110")},
	}, "outOfPwRange")

	if res.Attempted != 1 || res.Cancelled != 1 {
		t.Errorf("expected only the 200-priced order to be cancelled, got %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPriceFilter_Matches(t *testing.T) {
	f := PriceFilter{Op: ">", Price: decimal.RequireFromString("100")}
	if !f.matches(decimal.RequireFromString("101")) {
		t.Error("expected 101 > 100 to match")
	}
	if f.matches(decimal.RequireFromString("99")) {
		t.Error("expected 99 > 100 to not match")
	}
}
