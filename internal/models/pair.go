package models

import "github.com/shopspring/decimal"

// MarketDescriptor is the static shape of a traded pair, loaded once
// per exchange via loadMarkets() and reused for the life of the
// process.
type MarketDescriptor struct {
	Base  string
	Quote string

	BaseDecimals  int32
	QuoteDecimals int32

	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal

	// PriceTick is the minimum price increment the exchange accepts.
	PriceTick decimal.Decimal
}

// Symbol renders the descriptor as "BASE/QUOTE".
func (m MarketDescriptor) Symbol() string {
	return m.Base + "/" + m.Quote
}
