package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeParams is the persisted, mutable policy record every scheduler
// tick reads an in-memory snapshot of (tradeparams.Store, behind a
// read lock). It is written only by the
// command processor and saved after every successful mutation except
// the bare "y" confirmation itself.
type TradeParams struct {
	ID int64

	Active bool
	Policy MmPolicy

	ObActive  bool
	LiqActive bool
	PwActive  bool

	AmountMin decimal.Decimal
	AmountMax decimal.Decimal

	IntervalMin time.Duration
	IntervalMax time.Duration

	BuyPercent decimal.Decimal // [0, 100]

	OrderBookOrdersCount    int
	OrderBookHeight         int
	OrderBookMaxOrderPercent decimal.Decimal

	LiquiditySellAmount       decimal.Decimal // base
	LiquidityBuyQuoteAmount   decimal.Decimal // quote
	LiquiditySpreadPercent    decimal.Decimal
	LiquidityTrend            Trend

	// PwRangeLow/High hold the numeric source's operator-provided
	// range; PwMarketPair/PwMarketExchange hold the market source's
	// reference pair. Exactly one source kind is active at a time,
	// selected by PwSource.
	PwSource         PwSource
	PwRangeLow       decimal.Decimal
	PwRangeHigh      decimal.Decimal
	PwMarketPair     string
	PwMarketExchange string
	PwDeviationPct   decimal.Decimal
	PwAction         PwAction
	PwPolicy         PwPolicy

	AmountToConfirmUSD decimal.Decimal

	UpdatedAt time.Time
}

// ResetLiqLimits is an explicit signal value, not a persisted field:
// the liquidity provider re-seeds its pools when told to, typically
// right after a TradeParams mutation that touches liquidity fields.
type ResetLiqLimits struct {
	Reason string
	At     time.Time
}
