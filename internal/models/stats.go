package models

import "github.com/shopspring/decimal"

// StatsWindow is an aggregation window for statsByPurpose queries.
type StatsWindow string

const (
	WindowHour  StatsWindow = "hour"
	WindowDay   StatsWindow = "day"
	WindowMonth StatsWindow = "month"
	WindowAll   StatsWindow = "all"
)

// PurposeStat is one row of the ledger's statsByPurpose aggregation:
// how many orders of a given purpose moved how much volume, within a
// window, for one pair.
type PurposeStat struct {
	Pair    string
	Purpose Purpose
	Window  StatsWindow

	OrdersPlaced    int
	OrdersFilled    int
	OrdersCancelled int

	VolumeBase  decimal.Decimal
	VolumeQuote decimal.Decimal
}
