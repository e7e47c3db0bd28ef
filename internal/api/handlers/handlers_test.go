package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/cache"
	"github.com/dome/adamant-tradebot/internal/collector"
	"github.com/dome/adamant-tradebot/internal/command"
	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/ledger"
	"github.com/dome/adamant-tradebot/internal/models"
	"github.com/dome/adamant-tradebot/internal/pricemaker"
	"github.com/dome/adamant-tradebot/internal/tradeparams"
)

type stubAdapter struct {
	exchange.Adapter
	rates exchange.RateInfo
}

func (s *stubAdapter) GetRates(ctx context.Context, pair string) (exchange.RateInfo, error) {
	return s.rates, nil
}

func (s *stubAdapter) PlaceOrder(ctx context.Context, req exchange.PlaceRequest) (string, error) {
	return "ex-1", nil
}

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

func newHandler(t *testing.T) (*Handler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}

	mock.ExpectExec(`UPDATE trade_params`).WillReturnResult(sqlmock.NewResult(0, 1))
	store := tradeparams.New(db)
	if _, err := store.Mutate(context.Background(), func(p *models.TradeParams) { *p = tradeparams.Defaults() }); err != nil {
		t.Fatalf("seed mutate: %v", err)
	}

	l := ledger.New(db)
	adapter := &stubAdapter{rates: exchange.RateInfo{Last: decimal.RequireFromString("100")}}
	balances := cache.NewBalanceCache(0)
	balances.Set([]exchange.BalanceEntry{{Coin: "USDT", Free: decimal.RequireFromString("500")}})

	col := collector.New(l, adapter, nil, zap.NewNop().Sugar())
	maker := pricemaker.New(l, adapter, nil, "BTC/USDT", zap.NewNop().Sugar())
	dsp := command.New(store, l, col, maker, adapter, balances, "BTC/USDT", zap.NewNop().Sugar())

	h := &Handler{Ledger: l, Params: store, Balances: balances, Adapter: adapter, Dispatcher: dsp, Pair: "BTC/USDT"}
	return h, mock, func() { db.Close() }
}

func TestHealth_ReturnsOK(t *testing.T) {
	h, _, cleanup := newHandler(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestGetOrders_QueriesOpenRowsForPair(t *testing.T) {
	h, mock, cleanup := newHandler(t)
	defer cleanup()

	cols := []string{
		"id", "exchange_order_id", "pair", "side", "purpose", "state",
		"price", "base_amount", "base_filled", "base_remaining",
		"quote_filled", "closure_cause", "created_at", "updated_at", "closed",
	}
	mock.ExpectQuery(`SELECT .* FROM ledger_orders WHERE pair = \$1 AND closed = false`).
		WillReturnRows(sqlmock.NewRows(cols))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	w := httptest.NewRecorder()
	h.GetOrders(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetParams_ReturnsSnapshot(t *testing.T) {
	h, _, cleanup := newHandler(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/params", nil)
	w := httptest.NewRecorder()
	h.GetParams(w, req)

	var p models.TradeParams
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Policy == "" {
		t.Error("expected a non-empty policy in the params snapshot")
	}
}

func TestGetBalances_ReturnsCachedEntries(t *testing.T) {
	h, _, cleanup := newHandler(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/balances", nil)
	w := httptest.NewRecorder()
	h.GetBalances(w, req)

	var entries []exchange.BalanceEntry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Coin != "USDT" {
		t.Errorf("expected one USDT entry, got %+v", entries)
	}
}

func TestGetRates_ReturnsAdapterRates(t *testing.T) {
	h, _, cleanup := newHandler(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rates", nil)
	w := httptest.NewRecorder()
	h.GetRates(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestPostCommand_DispatchesParsedCommand(t *testing.T) {
	h, mock, cleanup := newHandler(t)
	defer cleanup()
	mock.ExpectExec(`UPDATE trade_params`).WillReturnResult(sqlmock.NewResult(0, 1))

	body := strings.NewReader(`{"command": "start mm spread"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands", body)
	w := httptest.NewRecorder()
	h.PostCommand(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPostCommand_RejectsEmptyBody(t *testing.T) {
	h, _, cleanup := newHandler(t)
	defer cleanup()

	body := strings.NewReader(`{"command": ""}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands", body)
	w := httptest.NewRecorder()
	h.PostCommand(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestParseCommand_SplitsVerbAndArgs(t *testing.T) {
	cmd, ok := parseCommand("buy amount=1 price=100", "BTC/USDT")
	if !ok {
		t.Fatal("expected ok")
	}
	if cmd.Verb != "buy" || len(cmd.Args) != 2 || cmd.Pair != "BTC/USDT" {
		t.Errorf("unexpected parse result: %+v", cmd)
	}
}
