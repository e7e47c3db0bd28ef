// Package exchange defines the uniform trading-API contract every
// exchange adapter implements (spec §4.A), plus a name-keyed factory.
// Concrete wire protocols are an external collaborator: apart from
// Bitget, which makes live REST calls, adapters here are structurally
// complete but network-stubbed, the same texture the
// teacher repository uses for its own exchange adapters.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dome/adamant-tradebot/internal/models"
)

// Capabilities describes what an adapter supports, so callers can
// branch without a type switch on the concrete adapter.
type Capabilities struct {
	PlaceMarketOrder              bool
	AmountForMarketBuy            bool // market buys are sized in quote, not base
	AmountForMarketOrderNecessary bool
	GetDepositAddress             bool
	GetTradingFees                bool
	SupportCoinNetworks           bool

	// OrderNumberLimit caps outstanding orders per pair; 0 means
	// unbounded. The order-book builder scales ob-order lifetimes by
	// this when set.
	OrderNumberLimit int
}

// BalanceEntry is one coin's balance line.
type BalanceEntry struct {
	Coin   string
	Free   decimal.Decimal
	Locked decimal.Decimal
	Total  decimal.Decimal
}

// OpenOrder is an exchange-reported live order, as returned by
// getOpenOrders — independent of whether the ledger knows about it.
type OpenOrder struct {
	ID            string
	Pair          string
	Side          models.Side
	Price         decimal.Decimal
	Amount        decimal.Decimal
	AmountExecuted decimal.Decimal
	Status        string
}

// DetailStatus is getOrderDetails' tri-plus-one-state result.
type DetailStatus string

const (
	DetailNew        DetailStatus = "new"
	DetailPartFilled DetailStatus = "partFilled"
	DetailFilled     DetailStatus = "filled"
	DetailCancelled  DetailStatus = "cancelled"
	DetailUnknown    DetailStatus = "unknown"
)

// OrderDetail is getOrderDetails' full result.
type OrderDetail struct {
	Status        DetailStatus
	FilledBase    decimal.Decimal
	FilledQuote   decimal.Decimal
	AvgFillPrice  decimal.Decimal
}

// CancelOutcome is cancelOrder's tri-state result.
type CancelOutcome string

const (
	CancelledOK    CancelOutcome = "cancelled"
	CancelAlready  CancelOutcome = "alreadyClosed"
	CancelUnknown  CancelOutcome = "unknown"
)

// RateInfo is getRates' result.
type RateInfo struct {
	Bid            decimal.Decimal
	Ask            decimal.Decimal
	Last           decimal.Decimal
	High24h        decimal.Decimal
	Low24h         decimal.Decimal
	Volume24hBase  decimal.Decimal
	Volume24hQuote decimal.Decimal
}

// PriceLevel is one order-book row.
type PriceLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// OrderBookSnapshot holds bids (descending) and asks (ascending).
type OrderBookSnapshot struct {
	Pair      string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// BestBid returns the highest bid, or a zero level if the book is empty.
func (s OrderBookSnapshot) BestBid() PriceLevel {
	if len(s.Bids) == 0 {
		return PriceLevel{}
	}
	return s.Bids[0]
}

// BestAsk returns the lowest ask, or a zero level if the book is empty.
func (s OrderBookSnapshot) BestAsk() PriceLevel {
	if len(s.Asks) == 0 {
		return PriceLevel{}
	}
	return s.Asks[0]
}

// PlaceRequest describes a single order placement. Exactly one of
// BaseAmount/QuoteAmount should be set for market orders sized in the
// quote currency (spec §4.A); limit orders always use BaseAmount.
type PlaceRequest struct {
	Pair        string
	Side        models.Side
	IsLimit     bool
	Price       decimal.Decimal // zero value for market orders
	BaseAmount  decimal.Decimal
	QuoteAmount decimal.Decimal
}

// Adapter is the contract every exchange client implements. All
// methods may fail with *apierrors.TransientAPIError,
// *apierrors.RejectedError, or *apierrors.UnknownOrderError; the
// contract is stateless across calls — per-adapter connection pools
// and rate limiting are internal.
type Adapter interface {
	Name() string

	// LoadMarkets is called once at startup; the result is cached by
	// the caller.
	LoadMarkets(ctx context.Context) (map[string]models.MarketDescriptor, error)

	Features() Capabilities

	GetBalances(ctx context.Context, includeZero bool) ([]BalanceEntry, error)

	GetOpenOrders(ctx context.Context, pair string) ([]OpenOrder, error)

	GetOrderDetails(ctx context.Context, id, pair string) (OrderDetail, error)

	PlaceOrder(ctx context.Context, req PlaceRequest) (exchangeOrderID string, err error)

	CancelOrder(ctx context.Context, id string, side models.Side, pair string) (CancelOutcome, error)

	GetRates(ctx context.Context, pair string) (RateInfo, error)

	GetOrderBook(ctx context.Context, pair string, depth int) (OrderBookSnapshot, error)

	Close() error
}
