// Package tradeparams persists the single mutable TradeParams policy
// record every scheduler tick reads an in-memory snapshot of. Writes
// happen only through the command processor; the snapshot sits behind
// a sync.RWMutex that a writer holds only while copying, never across
// the database write, so reads never wait on a database round trip.
package tradeparams

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dome/adamant-tradebot/internal/models"
)

// ErrNotFound is returned by Load when no row exists yet.
var ErrNotFound = errors.New("tradeparams: no row")

// Defaults seeds a fresh row on first boot, overridden by persisted
// state on every subsequent start.
func Defaults() models.TradeParams {
	return models.TradeParams{
		Active:                   false,
		Policy:                   models.PolicyOptimal,
		AmountMin:                decimal.NewFromInt(1),
		AmountMax:                decimal.NewFromInt(10),
		IntervalMin:              1500 * time.Millisecond,
		IntervalMax:              3000 * time.Millisecond,
		BuyPercent:               decimal.NewFromInt(50),
		OrderBookOrdersCount:     10,
		OrderBookHeight:          10,
		OrderBookMaxOrderPercent: decimal.NewFromInt(10),
		LiquiditySpreadPercent:   decimal.NewFromInt(2),
		LiquidityTrend:           models.TrendMiddle,
		PwSource:                 models.PwSourceNumeric,
		PwAction:                 models.PwActionPrevent,
		PwPolicy:                 models.PwPolicySmart,
		AmountToConfirmUSD:       decimal.NewFromInt(100),
	}
}

// Store is the Postgres-backed TradeParams row plus an in-memory
// snapshot every read goes through, so component ticks never block on
// a DB round trip for a parameter lookup. There is exactly one row
// (id=1) for this single-pair agent; Store enforces that with an
// UPSERT on Save.
type Store struct {
	db *sql.DB

	mu       sync.RWMutex
	snapshot models.TradeParams
}

// New wraps db without touching it; call Load (or Seed) before Snapshot.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Load reads the persisted row into the in-memory snapshot. Returns
// ErrNotFound if the table is empty — callers should then call Seed.
func (s *Store) Load(ctx context.Context) error {
	const query = `SELECT ` + selectColumns + ` FROM trade_params WHERE id = 1`
	row := s.db.QueryRowContext(ctx, query)
	p, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	s.mu.Lock()
	s.snapshot = *p
	s.mu.Unlock()
	return nil
}

// Seed inserts the given params as the single row (id=1) and loads it
// as the snapshot; used on first boot when Load returns ErrNotFound.
func (s *Store) Seed(ctx context.Context, p models.TradeParams) error {
	p.ID = 1
	p.UpdatedAt = time.Now()
	if err := s.insert(ctx, p); err != nil {
		return err
	}
	s.mu.Lock()
	s.snapshot = p
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current params, taken under the read
// lock. Safe to call from any component tick without touching the
// database.
func (s *Store) Snapshot() models.TradeParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Mutate applies fn to a copy of the current snapshot, persists the
// result, and installs it as the new snapshot. fn must not retain the
// pointer past its call.
func (s *Store) Mutate(ctx context.Context, fn func(*models.TradeParams)) (models.TradeParams, error) {
	s.mu.Lock()
	next := s.snapshot
	fn(&next)
	next.UpdatedAt = time.Now()
	s.mu.Unlock()

	if err := s.save(ctx, next); err != nil {
		return models.TradeParams{}, err
	}

	s.mu.Lock()
	s.snapshot = next
	s.mu.Unlock()
	return next, nil
}

func (s *Store) save(ctx context.Context, p models.TradeParams) error {
	const query = `
		UPDATE trade_params SET
			active = $1, policy = $2,
			ob_active = $3, liq_active = $4, pw_active = $5,
			amount_min = $6, amount_max = $7,
			interval_min_ms = $8, interval_max_ms = $9,
			buy_percent = $10,
			ob_orders_count = $11, ob_height = $12, ob_max_order_percent = $13,
			liq_sell_amount = $14, liq_buy_quote_amount = $15,
			liq_spread_percent = $16, liq_trend = $17,
			pw_source = $18, pw_range_low = $19, pw_range_high = $20,
			pw_market_pair = $21, pw_market_exchange = $22,
			pw_deviation_pct = $23, pw_action = $24, pw_policy = $25,
			amount_to_confirm_usd = $26, updated_at = $27
		WHERE id = 1`

	result, err := s.db.ExecContext(ctx, query,
		p.Active, p.Policy,
		p.ObActive, p.LiqActive, p.PwActive,
		p.AmountMin, p.AmountMax,
		p.IntervalMin.Milliseconds(), p.IntervalMax.Milliseconds(),
		p.BuyPercent,
		p.OrderBookOrdersCount, p.OrderBookHeight, p.OrderBookMaxOrderPercent,
		p.LiquiditySellAmount, p.LiquidityBuyQuoteAmount,
		p.LiquiditySpreadPercent, p.LiquidityTrend,
		p.PwSource, p.PwRangeLow, p.PwRangeHigh,
		p.PwMarketPair, p.PwMarketExchange,
		p.PwDeviationPct, p.PwAction, p.PwPolicy,
		p.AmountToConfirmUSD, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.insert(ctx, p)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, p models.TradeParams) error {
	const query = `
		INSERT INTO trade_params (
			id, active, policy,
			ob_active, liq_active, pw_active,
			amount_min, amount_max,
			interval_min_ms, interval_max_ms,
			buy_percent,
			ob_orders_count, ob_height, ob_max_order_percent,
			liq_sell_amount, liq_buy_quote_amount,
			liq_spread_percent, liq_trend,
			pw_source, pw_range_low, pw_range_high,
			pw_market_pair, pw_market_exchange,
			pw_deviation_pct, pw_action, pw_policy,
			amount_to_confirm_usd, updated_at
		) VALUES (
			1, $1, $2,
			$3, $4, $5,
			$6, $7,
			$8, $9,
			$10,
			$11, $12, $13,
			$14, $15,
			$16, $17,
			$18, $19, $20,
			$21, $22,
			$23, $24, $25,
			$26, $27
		)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		p.Active, p.Policy,
		p.ObActive, p.LiqActive, p.PwActive,
		p.AmountMin, p.AmountMax,
		p.IntervalMin.Milliseconds(), p.IntervalMax.Milliseconds(),
		p.BuyPercent,
		p.OrderBookOrdersCount, p.OrderBookHeight, p.OrderBookMaxOrderPercent,
		p.LiquiditySellAmount, p.LiquidityBuyQuoteAmount,
		p.LiquiditySpreadPercent, p.LiquidityTrend,
		p.PwSource, p.PwRangeLow, p.PwRangeHigh,
		p.PwMarketPair, p.PwMarketExchange,
		p.PwDeviationPct, p.PwAction, p.PwPolicy,
		p.AmountToConfirmUSD, p.UpdatedAt,
	)
	return err
}

const selectColumns = `
	id, active, policy,
	ob_active, liq_active, pw_active,
	amount_min, amount_max,
	interval_min_ms, interval_max_ms,
	buy_percent,
	ob_orders_count, ob_height, ob_max_order_percent,
	liq_sell_amount, liq_buy_quote_amount,
	liq_spread_percent, liq_trend,
	pw_source, pw_range_low, pw_range_high,
	pw_market_pair, pw_market_exchange,
	pw_deviation_pct, pw_action, pw_policy,
	amount_to_confirm_usd, updated_at`

func scan(row interface{ Scan(...interface{}) error }) (*models.TradeParams, error) {
	p := &models.TradeParams{}
	var intervalMinMs, intervalMaxMs int64
	err := row.Scan(
		&p.ID, &p.Active, &p.Policy,
		&p.ObActive, &p.LiqActive, &p.PwActive,
		&p.AmountMin, &p.AmountMax,
		&intervalMinMs, &intervalMaxMs,
		&p.BuyPercent,
		&p.OrderBookOrdersCount, &p.OrderBookHeight, &p.OrderBookMaxOrderPercent,
		&p.LiquiditySellAmount, &p.LiquidityBuyQuoteAmount,
		&p.LiquiditySpreadPercent, &p.LiquidityTrend,
		&p.PwSource, &p.PwRangeLow, &p.PwRangeHigh,
		&p.PwMarketPair, &p.PwMarketExchange,
		&p.PwDeviationPct, &p.PwAction, &p.PwPolicy,
		&p.AmountToConfirmUSD, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.IntervalMin = time.Duration(intervalMinMs) * time.Millisecond
	p.IntervalMax = time.Duration(intervalMaxMs) * time.Millisecond
	return p, nil
}
