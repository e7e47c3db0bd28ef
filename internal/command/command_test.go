package command

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/collector"
	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/ledger"
	"github.com/dome/adamant-tradebot/internal/models"
	"github.com/dome/adamant-tradebot/internal/pricemaker"
	"github.com/dome/adamant-tradebot/internal/tradeparams"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubAdapter struct {
	exchange.Adapter
	rates    exchange.RateInfo
	placedID string
	placeErr error
}

func (s *stubAdapter) GetRates(ctx context.Context, pair string) (exchange.RateInfo, error) {
	return s.rates, nil
}

func (s *stubAdapter) GetOrderBook(ctx context.Context, pair string, depth int) (exchange.OrderBookSnapshot, error) {
	return exchange.OrderBookSnapshot{}, nil
}

func (s *stubAdapter) PlaceOrder(ctx context.Context, req exchange.PlaceRequest) (string, error) {
	if s.placeErr != nil {
		return "", s.placeErr
	}
	if s.placedID != "" {
		return s.placedID, nil
	}
	return "ex-man-1", nil
}

type stubBalances struct{ entries []exchange.BalanceEntry }

func (b stubBalances) All() []exchange.BalanceEntry { return b.entries }

func paramsRows() *sqlmock.Rows {
	cols := []string{
		"id", "active", "policy",
		"ob_active", "liq_active", "pw_active",
		"amount_min", "amount_max",
		"interval_min_ms", "interval_max_ms",
		"buy_percent",
		"ob_orders_count", "ob_height", "ob_max_order_percent",
		"liq_sell_amount", "liq_buy_quote_amount",
		"liq_spread_percent", "liq_trend",
		"pw_source", "pw_range_low", "pw_range_high",
		"pw_market_pair", "pw_market_exchange",
		"pw_deviation_pct", "pw_action", "pw_policy",
		"amount_to_confirm_usd", "updated_at",
	}
	return sqlmock.NewRows(cols)
}

func newDispatcher(t *testing.T, adapter *stubAdapter, balances BalanceSource, amountToConfirm decimal.Decimal) *Dispatcher {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec(`UPDATE trade_params`).WillReturnResult(sqlmock.NewResult(0, 1))

	store := tradeparams.New(db)
	defaults := tradeparams.Defaults()
	defaults.AmountToConfirmUSD = amountToConfirm
	if _, err := store.Mutate(context.Background(), func(p *models.TradeParams) { *p = defaults }); err != nil {
		t.Fatalf("seed mutate: %v", err)
	}
	// Room for one params write by the dispatched command itself.
	mock.ExpectExec(`UPDATE trade_params`).WillReturnResult(sqlmock.NewResult(0, 1))

	l := ledger.New(db)
	col := collector.New(l, adapter, nil, zap.NewNop().Sugar())
	maker := pricemaker.New(l, adapter, nil, "BTC/USDT", zap.NewNop().Sugar())
	return New(store, l, col, maker, adapter, balances, "BTC/USDT", zap.NewNop().Sugar())
}

func TestDispatch_StartSetsActiveAndPolicy(t *testing.T) {
	adapter := &stubAdapter{}
	dsp := newDispatcher(t, adapter, nil, d("1000"))

	res := dsp.Dispatch(context.Background(), Command{Verb: "start", Args: []string{"mm", "spread"}})
	if res.Confirmation != nil {
		t.Fatalf("start should never require confirmation, got %+v", res)
	}
	if got := dsp.params.Snapshot().Policy; got != models.PolicySpread {
		t.Errorf("expected policy spread, got %s", got)
	}
}

func TestDispatch_BuySmallAmountExecutesDirectly(t *testing.T) {
	adapter := &stubAdapter{}
	balances := stubBalances{entries: []exchange.BalanceEntry{{Coin: "quote", Free: d("10000")}}}
	dsp := newDispatcher(t, adapter, balances, d("1000"))

	res := dsp.Dispatch(context.Background(), Command{
		Verb: "buy", Args: []string{"amount=1", "price=100"},
	})
	if res.Confirmation != nil {
		t.Fatalf("small buy should not require confirmation, got %+v", res)
	}
}

func TestDispatch_MakeAlwaysRequiresConfirmation(t *testing.T) {
	adapter := &stubAdapter{}
	dsp := newDispatcher(t, adapter, nil, d("1000"))

	res := dsp.Dispatch(context.Background(), Command{Verb: "make", Args: []string{"price", "110"}})
	if res.Confirmation == nil {
		t.Fatalf("expected a confirmation prompt, got %+v", res)
	}
}

func TestDispatch_InlineYMarkerSkipsConfirmation(t *testing.T) {
	adapter := &stubAdapter{rates: exchange.RateInfo{Last: d("100")}}
	dsp := newDispatcher(t, adapter, nil, d("1000"))

	res := dsp.Dispatch(context.Background(), Command{Verb: "make", Args: []string{"price", "100", "-y"}, Raw: "make price 100 -y"})
	if res.Confirmation != nil {
		t.Fatalf("the -y marker must short-circuit confirmation entirely, got %+v", res)
	}
}

func TestDispatch_BareYReRunsPending(t *testing.T) {
	adapter := &stubAdapter{rates: exchange.RateInfo{Last: d("100")}}
	dsp := newDispatcher(t, adapter, nil, d("1000"))

	first := dsp.Dispatch(context.Background(), Command{Verb: "make", Args: []string{"price", "100"}})
	if first.Confirmation == nil {
		t.Fatalf("expected a pending confirmation, got %+v", first)
	}

	second := dsp.Dispatch(context.Background(), Command{Verb: "y"})
	if second.UserMessage == "nothing pending confirmation" {
		t.Fatalf("expected the pending make command to run, got %+v", second)
	}
}

func TestDispatch_BareYWithNothingPending(t *testing.T) {
	adapter := &stubAdapter{}
	dsp := newDispatcher(t, adapter, nil, d("1000"))

	res := dsp.Dispatch(context.Background(), Command{Verb: "y"})
	if res.UserMessage != "nothing pending confirmation" {
		t.Errorf("expected the no-op message, got %q", res.UserMessage)
	}
}

func TestDispatch_FillRejectsOnInsufficientQuoteBalance(t *testing.T) {
	adapter := &stubAdapter{}
	balances := stubBalances{entries: []exchange.BalanceEntry{{Coin: "quote", Free: d("0.005")}}}
	dsp := newDispatcher(t, adapter, balances, d("100000"))

	res := dsp.Dispatch(context.Background(), Command{
		Verb: "fill",
		Args: []string{"buy", "quote=0.01", "low=100", "high=110", "count=5"},
	})
	want := "not enough quote"
	if len(res.UserMessage) < len(want) || res.UserMessage[:len(want)] != want {
		t.Errorf("expected a 'not enough quote' rejection, got %q", res.UserMessage)
	}
}

func TestDispatch_ClearBuildsSelectorFromPriceFilter(t *testing.T) {
	adapter := &stubAdapter{}
	dsp := newDispatcher(t, adapter, nil, d("1000"))

	res := dsp.Dispatch(context.Background(), Command{
		Verb: "clear", Args: []string{"mm", "sell", ">0.5"},
	})
	if res.UserMessage == "" {
		t.Fatalf("expected a log-message result, got %+v", res)
	}
}

func TestParseRange_SplitsOnDash(t *testing.T) {
	lo, hi, ok := parseRange("1-10")
	if !ok || !lo.Equal(d("1")) || !hi.Equal(d("10")) {
		t.Fatalf("expected 1,10, got %s,%s,%v", lo, hi, ok)
	}
}

func TestParseRange_RejectsMalformed(t *testing.T) {
	if _, _, ok := parseRange("not-a-range"); ok {
		t.Error("expected parseRange to reject non-numeric bounds")
	}
}
