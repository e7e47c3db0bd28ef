package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceWatcherState is the watcher's latest published band, read by
// every maker component before it proposes a price.
type PriceWatcherState struct {
	LowPrice  decimal.Decimal
	MidPrice  decimal.Decimal
	HighPrice decimal.Decimal

	DeviationPercent decimal.Decimal

	// Source describes where the band came from: "numeric" or
	// "market:<pair>@<exchange>".
	Source string

	IsActual        bool
	IsPriceAnomaly  bool
	LastUpdated     time.Time
}

// InBand reports whether price falls within [LowPrice, HighPrice],
// inclusive, per the price-band containment invariant.
func (s PriceWatcherState) InBand(price decimal.Decimal) bool {
	return !price.LessThan(s.LowPrice) && !price.GreaterThan(s.HighPrice)
}

// PwSource is the kind of range source configured for the watcher.
type PwSource string

const (
	PwSourceNumeric PwSource = "numeric"
	PwSourceMarket  PwSource = "market"
)

// PwAction is what the watcher does when price escapes the band.
type PwAction string

const (
	PwActionFill    PwAction = "fill"
	PwActionPrevent PwAction = "prevent"
)

// PwPolicy governs tolerance for a stale (not-actual) band.
type PwPolicy string

const (
	PwPolicySmart  PwPolicy = "smart"
	PwPolicyStrict PwPolicy = "strict"
)

// Trend is the liquidity provider's standing-pool skew.
type Trend string

const (
	TrendMiddle   Trend = "middle"
	TrendUptrend  Trend = "uptrend"
	TrendDowntrend Trend = "downtrend"
)

// MmPolicy selects which maker components the scheduler runs.
type MmPolicy string

const (
	PolicyOptimal MmPolicy = "optimal"
	PolicySpread  MmPolicy = "spread"
	PolicyDepth   MmPolicy = "depth"
)
