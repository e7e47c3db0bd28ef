package liquidity

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/cache"
	"github.com/dome/adamant-tradebot/internal/collector"
	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/ledger"
	"github.com/dome/adamant-tradebot/internal/models"
	"github.com/dome/adamant-tradebot/internal/reconciler"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeWatcher struct{ state models.PriceWatcherState }

func (f fakeWatcher) State() models.PriceWatcherState { return f.state }

type fakeParams struct{ p models.TradeParams }

func (f fakeParams) Snapshot() models.TradeParams { return f.p }

type stubAdapter struct {
	exchange.Adapter
	rates    exchange.RateInfo
	placedID string
}

func (s *stubAdapter) GetRates(ctx context.Context, pair string) (exchange.RateInfo, error) {
	return s.rates, nil
}

func (s *stubAdapter) PlaceOrder(ctx context.Context, req exchange.PlaceRequest) (string, error) {
	if s.placedID != "" {
		return s.placedID, nil
	}
	return "ex-liq-1", nil
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

func newProvider(t *testing.T, p models.TradeParams) (*Provider, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	l := ledger.New(db)
	adapter := &stubAdapter{rates: exchange.RateInfo{Last: d("100")}}
	prov := New(
		l,
		reconciler.New(l, adapter, zap.NewNop().Sugar()),
		collector.New(l, adapter, nil, zap.NewNop().Sugar()),
		adapter,
		fakeWatcher{},
		fakeParams{p: p},
		cache.NewMarketsCache(),
		"BTC/USDT",
		zap.NewNop().Sugar(),
	)
	return prov, mock, func() { db.Close() }
}

func TestProvider_SkipsWhenInactive(t *testing.T) {
	p, _, closeDB := newProvider(t, models.TradeParams{Active: false})
	defer closeDB()

	p.Tick(context.Background())
	// No SQL expectations set; Tick must not touch the database at all.
}

func TestBuildLevels_MiddleTrendSymmetric(t *testing.T) {
	params := models.TradeParams{LiquidityTrend: models.TrendMiddle, LiquiditySpreadPercent: d("3")}
	ls := buildLevels(d("100"), params)
	for i := range ls.asks {
		askOffset := ls.asks[i].price.Sub(d("100"))
		bidOffset := d("100").Sub(ls.bids[i].price)
		if !askOffset.Equal(bidOffset) {
			t.Errorf("level %d: expected symmetric offsets, got ask=%s bid=%s", i, askOffset, bidOffset)
		}
	}
}

func TestBuildLevels_UptrendSkewsAsksFartherThanBids(t *testing.T) {
	params := models.TradeParams{LiquidityTrend: models.TrendUptrend, LiquiditySpreadPercent: d("3")}
	ls := buildLevels(d("100"), params)
	askOffset := ls.asks[levelCount-1].price.Sub(d("100"))
	bidOffset := d("100").Sub(ls.bids[levelCount-1].price)
	if !askOffset.GreaterThan(bidOffset) {
		t.Errorf("expected uptrend asks farther from mid than bids, got ask=%s bid=%s", askOffset, bidOffset)
	}
}

func TestProvider_SeedsBothPoolsFromScratch(t *testing.T) {
	params := models.TradeParams{
		Active: true, LiqActive: true,
		LiquiditySellAmount:     d("100"),
		LiquidityBuyQuoteAmount: d("50"),
		LiquiditySpreadPercent:  d("2"),
		LiquidityTrend:          models.TrendUptrend,
	}
	p, mock, closeDB := newProvider(t, params)
	defer closeDB()

	// reconcile: no open liq orders
	mock.ExpectQuery(`SELECT (.|\n)* FROM ledger_orders WHERE pair = \$1 AND closed = false`).WillReturnRows(openOrderRows())
	// reset-on-trend-change collector pass (lastTrend starts empty != Uptrend)
	mock.ExpectQuery(`SELECT (.|\n)* FROM ledger_orders WHERE pair = \$1 AND closed = false`).WillReturnRows(openOrderRows())
	// cancelOutOfSpread pass
	mock.ExpectQuery(`SELECT (.|\n)* FROM ledger_orders WHERE pair = \$1 AND closed = false`).WillReturnRows(openOrderRows())
	// reload open before fillSide
	mock.ExpectQuery(`SELECT (.|\n)* FROM ledger_orders WHERE pair = \$1 AND closed = false`).WillReturnRows(openOrderRows())
	// up to levelCount inserts per side
	for i := 0; i < levelCount*2; i++ {
		mock.ExpectQuery(`INSERT INTO ledger_orders`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(i + 1)))
	}

	p.Tick(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProvider_StrictPolicyBlocksPlacementWhenWatcherNotActual(t *testing.T) {
	params := models.TradeParams{
		Active: true, LiqActive: true,
		PwActive: true, PwPolicy: models.PwPolicyStrict,
		LiquiditySellAmount:     d("100"),
		LiquidityBuyQuoteAmount: d("50"),
		LiquiditySpreadPercent:  d("2"),
	}
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	l := ledger.New(db)
	adapter := &stubAdapter{rates: exchange.RateInfo{Last: d("100")}}
	p := New(
		l,
		reconciler.New(l, adapter, zap.NewNop().Sugar()),
		collector.New(l, adapter, nil, zap.NewNop().Sugar()),
		adapter,
		fakeWatcher{state: models.PriceWatcherState{IsActual: false}},
		fakeParams{p: params},
		cache.NewMarketsCache(),
		"BTC/USDT",
		zap.NewNop().Sugar(),
	)

	// reconcile: no open liq orders
	mock.ExpectQuery(`SELECT (.|\n)* FROM ledger_orders WHERE pair = \$1 AND closed = false`).WillReturnRows(openOrderRows())

	p.Tick(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPartition_SplitsBySide(t *testing.T) {
	open := []*models.Order{
		{Side: models.SideSell},
		{Side: models.SideBuy},
		{Side: models.SideSell},
	}
	asks, bids := partition(open)
	if len(asks) != 2 || len(bids) != 1 {
		t.Fatalf("expected 2 asks / 1 bid, got %d/%d", len(asks), len(bids))
	}
}
