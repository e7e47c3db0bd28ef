package pricewatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/models"
	"github.com/dome/adamant-tradebot/internal/pricemaker"
)

// fakeStore is an in-memory ParamsSource for tests, standing in for
// *tradeparams.Store without a database round trip.
type fakeStore struct {
	mu sync.RWMutex
	p  models.TradeParams
}

func newFakeStore(p models.TradeParams) *fakeStore {
	return &fakeStore{p: p}
}

func (s *fakeStore) Snapshot() models.TradeParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p
}

func (s *fakeStore) Mutate(ctx context.Context, fn func(*models.TradeParams)) (models.TradeParams, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.p)
	return s.p, nil
}

type fakeRates struct {
	ok bool
}

func (f fakeRates) ConvertToQuote(ctx context.Context, amount decimal.Decimal, from, quote string) (decimal.Decimal, bool) {
	if !f.ok {
		return decimal.Zero, false
	}
	return amount, true
}

type fakeAdapterProvider struct {
	adapter exchange.Adapter
	err     error
}

func (p fakeAdapterProvider) Adapter(ctx context.Context, name string) (exchange.Adapter, error) {
	return p.adapter, p.err
}

type stubAdapter struct {
	exchange.Adapter
	book exchange.OrderBookSnapshot
	err  error
}

func (s stubAdapter) GetOrderBook(ctx context.Context, pair string, depth int) (exchange.OrderBookSnapshot, error) {
	return s.book, s.err
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeRater struct {
	rate exchange.RateInfo
	err  error
}

func (f fakeRater) GetRates(ctx context.Context, pair string) (exchange.RateInfo, error) {
	return f.rate, f.err
}

type fakePusher struct {
	calls  int
	target decimal.Decimal
	report pricemaker.Report
}

func (f *fakePusher) Push(ctx context.Context, target decimal.Decimal) pricemaker.Report {
	f.calls++
	f.target = target
	return f.report
}

func TestWatcher_NumericSourcePublishesBand(t *testing.T) {
	store := newStoreWithNumericRange(t)
	w := New(store, nil, fakeRates{ok: true}, nil, "BTC/USDT", zap.NewNop().Sugar())

	w.Tick(context.Background())

	state := w.State()
	if !state.IsActual {
		t.Fatalf("expected band to be actual, got %+v", state)
	}
	if !state.LowPrice.Equal(d("95")) || !state.HighPrice.Equal(d("105")) {
		t.Errorf("unexpected band: %+v", state)
	}
}

func TestWatcher_NumericSourceInactiveWhenConversionFails(t *testing.T) {
	store := newStoreWithNumericRange(t)
	w := New(store, nil, fakeRates{ok: false}, nil, "BTC/USDT", zap.NewNop().Sugar())

	w.Tick(context.Background())

	if w.State().IsActual {
		t.Error("expected band to be not-actual after a failed conversion")
	}
}

func TestWatcher_MarketSourceDerivesBandFromOrderBook(t *testing.T) {
	store := newStoreWithMarketRange(t)
	book := exchange.OrderBookSnapshot{
		Pair: "BTC/USDT",
		Bids: []exchange.PriceLevel{{Price: d("99"), Amount: d("1")}},
		Asks: []exchange.PriceLevel{{Price: d("101"), Amount: d("1")}},
	}
	provider := fakeAdapterProvider{adapter: stubAdapter{book: book}}
	w := New(store, provider, nil, nil, "BTC/USDT", zap.NewNop().Sugar())

	w.Tick(context.Background())

	state := w.State()
	if !state.IsActual {
		t.Fatalf("expected band to be actual, got %+v", state)
	}
	if state.LowPrice.GreaterThan(d("99")) || state.HighPrice.LessThan(d("101")) {
		t.Errorf("expected band to at least span the book's best quotes, got %+v", state)
	}
}

func TestWatcher_SmartPolicyKeepsStaleBandWithinGrace(t *testing.T) {
	store := newStoreWithNumericRange(t)
	w := New(store, nil, fakeRates{ok: true}, nil, "BTC/USDT", zap.NewNop().Sugar())

	w.Tick(context.Background())
	if !w.State().IsActual {
		t.Fatal("expected initial tick to publish an actual band")
	}

	w.rates = fakeRates{ok: false}
	w.Tick(context.Background())

	if !w.State().IsActual {
		t.Error("expected smart policy to keep serving the stale band within the grace window")
	}
}

func TestWatcher_AnomalySuppressedUntilConfirmed(t *testing.T) {
	store := newStoreWithNumericRange(t)
	w := New(store, nil, fakeRates{ok: true}, nil, "BTC/USDT", zap.NewNop().Sugar())
	w.Tick(context.Background())

	if _, err := store.Mutate(context.Background(), func(tp *models.TradeParams) {
		tp.PwRangeLow = d("500")
		tp.PwRangeHigh = d("600")
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	w.Tick(context.Background())
	if !w.State().IsPriceAnomaly {
		t.Error("expected a large jump to be flagged as an anomaly on first observation")
	}
	if w.State().MidPrice.Equal(d("550")) {
		t.Error("anomalous range should not be published until confirmed")
	}

	w.Tick(context.Background())
	w.Tick(context.Background())

	state := w.State()
	if state.IsPriceAnomaly {
		t.Errorf("expected the anomaly to clear after confirmation ticks, got %+v", state)
	}
}

func TestWatcher_FillActionPushesPriceBackIntoBand(t *testing.T) {
	p := models.TradeParams{
		PwActive:    true,
		PwSource:    models.PwSourceNumeric,
		PwRangeLow:  d("95"),
		PwRangeHigh: d("105"),
		PwPolicy:    models.PwPolicySmart,
		PwAction:    models.PwActionFill,
		UpdatedAt:   time.Now(),
	}
	store := newFakeStore(p)
	w := New(store, nil, fakeRates{ok: true}, fakeRater{rate: exchange.RateInfo{Last: d("120")}}, "BTC/USDT", zap.NewNop().Sugar())
	pusher := &fakePusher{report: pricemaker.Report{Success: true, AfterRate: d("105")}}
	w.SetPusher(pusher)

	w.Tick(context.Background())

	if pusher.calls != 1 {
		t.Fatalf("expected fill action to push once, got %d calls", pusher.calls)
	}
	if !pusher.target.Equal(d("105")) {
		t.Errorf("expected push target at the high band edge, got %s", pusher.target)
	}
}

func TestWatcher_FillActionSkipsWhenPriceWithinBand(t *testing.T) {
	p := models.TradeParams{
		PwActive:    true,
		PwSource:    models.PwSourceNumeric,
		PwRangeLow:  d("95"),
		PwRangeHigh: d("105"),
		PwPolicy:    models.PwPolicySmart,
		PwAction:    models.PwActionFill,
		UpdatedAt:   time.Now(),
	}
	store := newFakeStore(p)
	w := New(store, nil, fakeRates{ok: true}, fakeRater{rate: exchange.RateInfo{Last: d("100")}}, "BTC/USDT", zap.NewNop().Sugar())
	pusher := &fakePusher{report: pricemaker.Report{Success: true}}
	w.SetPusher(pusher)

	w.Tick(context.Background())

	if pusher.calls != 0 {
		t.Errorf("expected no push when the traded price is already within the band, got %d calls", pusher.calls)
	}
}

func TestWatcher_PreventActionNeverPushes(t *testing.T) {
	p := models.TradeParams{
		PwActive:    true,
		PwSource:    models.PwSourceNumeric,
		PwRangeLow:  d("95"),
		PwRangeHigh: d("105"),
		PwPolicy:    models.PwPolicySmart,
		PwAction:    models.PwActionPrevent,
		UpdatedAt:   time.Now(),
	}
	store := newFakeStore(p)
	w := New(store, nil, fakeRates{ok: true}, fakeRater{rate: exchange.RateInfo{Last: d("500")}}, "BTC/USDT", zap.NewNop().Sugar())
	pusher := &fakePusher{report: pricemaker.Report{Success: true}}
	w.SetPusher(pusher)

	w.Tick(context.Background())

	if pusher.calls != 0 {
		t.Errorf("expected prevent action to rely on collector cancellation, not a push, got %d calls", pusher.calls)
	}
}

func newStoreWithNumericRange(t *testing.T) *fakeStore {
	t.Helper()
	p := models.TradeParams{
		PwActive:    true,
		PwSource:    models.PwSourceNumeric,
		PwRangeLow:  d("95"),
		PwRangeHigh: d("105"),
		PwPolicy:    models.PwPolicySmart,
		UpdatedAt:   time.Now(),
	}
	return newFakeStore(p)
}

func newStoreWithMarketRange(t *testing.T) *fakeStore {
	t.Helper()
	p := models.TradeParams{
		PwActive:         true,
		PwSource:         models.PwSourceMarket,
		PwMarketPair:     "BTC/USDT",
		PwMarketExchange: "bitget",
		PwDeviationPct:   d("1"),
		PwPolicy:         models.PwPolicySmart,
		UpdatedAt:        time.Now(),
	}
	return newFakeStore(p)
}
