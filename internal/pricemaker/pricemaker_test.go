package pricemaker

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/ledger"
	"github.com/dome/adamant-tradebot/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeWatcher struct{ state models.PriceWatcherState }

func (f fakeWatcher) State() models.PriceWatcherState { return f.state }

type stubAdapter struct {
	exchange.Adapter
	rates    exchange.RateInfo
	book     exchange.OrderBookSnapshot
	placedID string
	placeErr error

	lastReq exchange.PlaceRequest
}

func (s *stubAdapter) GetRates(ctx context.Context, pair string) (exchange.RateInfo, error) {
	return s.rates, nil
}

func (s *stubAdapter) GetOrderBook(ctx context.Context, pair string, depth int) (exchange.OrderBookSnapshot, error) {
	return s.book, nil
}

func (s *stubAdapter) PlaceOrder(ctx context.Context, req exchange.PlaceRequest) (string, error) {
	s.lastReq = req
	if s.placeErr != nil {
		return "", s.placeErr
	}
	if s.placedID != "" {
		return s.placedID, nil
	}
	return "ex-pm-1", nil
}

func newMaker(t *testing.T, adapter *stubAdapter, watcher PriceWatcherSource) (*Maker, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	l := ledger.New(db)
	m := New(l, adapter, watcher, "BTC/USDT", zap.NewNop().Sugar())
	return m, mock, func() { db.Close() }
}

func TestPush_AlreadyAtTarget(t *testing.T) {
	adapter := &stubAdapter{rates: exchange.RateInfo{Last: d("100")}}
	m, _, closeDB := newMaker(t, adapter, nil)
	defer closeDB()

	rep := m.Push(context.Background(), d("100"))
	if !rep.Success || !rep.AfterRate.Equal(d("100")) {
		t.Fatalf("expected a no-op success at target, got %+v", rep)
	}
}

func TestPush_BuySideWalksAsksAndPlaces(t *testing.T) {
	adapter := &stubAdapter{
		rates: exchange.RateInfo{Last: d("100")},
		book: exchange.OrderBookSnapshot{
			Asks: []exchange.PriceLevel{
				{Price: d("101"), Amount: d("2")},
				{Price: d("102"), Amount: d("3")},
				{Price: d("105"), Amount: d("10")},
			},
		},
	}
	m, mock, closeDB := newMaker(t, adapter, nil)
	defer closeDB()

	mock.ExpectQuery(`INSERT INTO ledger_orders`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	rep := m.Push(context.Background(), d("102"))
	if !rep.Success {
		t.Fatalf("expected success, got %+v", rep)
	}
	if rep.Side != models.SideBuy {
		t.Errorf("expected buy side, got %s", rep.Side)
	}
	// Levels up to and including 102 sum to 5 base; reliability factor
	// is fixed at the midpoint of [1.05,1.10] = 1.075.
	want := d("5").Mul(d("1.075"))
	if !rep.Amount.Equal(want) {
		t.Errorf("expected amount %s, got %s", want, rep.Amount)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPush_SellSideWalksBids(t *testing.T) {
	adapter := &stubAdapter{
		rates: exchange.RateInfo{Last: d("100")},
		book: exchange.OrderBookSnapshot{
			Bids: []exchange.PriceLevel{
				{Price: d("99"), Amount: d("1")},
				{Price: d("97"), Amount: d("4")},
			},
		},
	}
	m, mock, closeDB := newMaker(t, adapter, nil)
	defer closeDB()

	mock.ExpectQuery(`INSERT INTO ledger_orders`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	rep := m.Push(context.Background(), d("97"))
	if !rep.Success || rep.Side != models.SideSell {
		t.Fatalf("expected sell side success, got %+v", rep)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPush_NoDepthAvailable(t *testing.T) {
	adapter := &stubAdapter{
		rates: exchange.RateInfo{Last: d("100")},
		book:  exchange.OrderBookSnapshot{Asks: []exchange.PriceLevel{{Price: d("150"), Amount: d("1")}}},
	}
	m, _, closeDB := newMaker(t, adapter, nil)
	defer closeDB()

	rep := m.Push(context.Background(), d("102"))
	if rep.Success {
		t.Fatalf("expected failure when no level sits at or below target, got %+v", rep)
	}
}

func TestPush_PriceWatcherCorrectsOutOfBand(t *testing.T) {
	adapter := &stubAdapter{
		rates: exchange.RateInfo{Last: d("100")},
		book: exchange.OrderBookSnapshot{
			Asks: []exchange.PriceLevel{{Price: d("101"), Amount: d("5")}},
		},
	}
	watcher := fakeWatcher{state: models.PriceWatcherState{IsActual: true, LowPrice: d("95"), HighPrice: d("100.5")}}
	m, mock, closeDB := newMaker(t, adapter, watcher)
	defer closeDB()

	mock.ExpectQuery(`INSERT INTO ledger_orders`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	rep := m.Push(context.Background(), d("101"))
	if !rep.Success {
		t.Fatalf("expected success, got %+v", rep)
	}
	if rep.Price.GreaterThan(d("100.5")) {
		t.Errorf("expected price clamped into the watcher band, got %s", rep.Price)
	}
}
