package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purpose tags the reason an order exists. "unk" is never stored — it
// classifies an exchange-visible order that has no ledger row.
type Purpose string

const (
	PurposeMarketMaking Purpose = "mm"
	PurposeOrderBook    Purpose = "ob"
	PurposeLiquidity    Purpose = "liq"
	PurposePriceWatcher Purpose = "pw"
	PurposePriceMaker   Purpose = "pm"
	PurposeCloser       Purpose = "cl"
	PurposeQuoteHold    Purpose = "qh"
	PurposeLadder       Purpose = "ld"
	PurposeManual       Purpose = "man"
	PurposeUnknown      Purpose = "unk"
)

// Side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType distinguishes limit from market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// State is the ledger order's lifecycle state.
type State string

const (
	StateNew        State = "NEW"
	StateOpen       State = "OPEN"
	StatePartial    State = "PARTIAL"
	StateFilled     State = "FILLED"
	StateCancelling State = "CANCELLING"
	StateClosed     State = "CLOSED"
	StateRejected   State = "REJECTED"
)

// ClosureCause records why a closed order stopped being tracked as open.
type ClosureCause string

const (
	ClosureExpired        ClosureCause = "expired"
	ClosureOutOfPwRange   ClosureCause = "outOfPwRange"
	ClosureUserCommand    ClosureCause = "userCommand"
	ClosureExternalCancel ClosureCause = "externalCancel"
	ClosureFilled         ClosureCause = "filled"
)

// LadderState tracks a ladder order's own sub-lifecycle, independent of
// the parent Order.State: a ladder slot may be skipped on rejection
// without the enclosing order ever having reached the exchange.
type LadderState string

const (
	LadderPending LadderState = "pending"
	LadderPlaced  LadderState = "placed"
	LadderSkipped LadderState = "skipped"
)

// Order is the central ledger record: every limit or market order this
// agent has placed, from decision through terminal state.
type Order struct {
	// InternalID is the ledger's own primary key, stable across
	// restarts because it is the database row id, not a
	// process-local counter.
	InternalID int64

	// ExchangeOrderID is empty until the exchange accepts the
	// placement; rejected placements never populate it.
	ExchangeOrderID string

	Pair string // e.g. "BTC/USDT"
	Side Side
	Type OrderType

	Purpose Purpose
	State   State

	CreatedAt time.Time
	ExpiresAt *time.Time
	UpdatedAt time.Time

	Price decimal.Decimal

	BaseAmount     decimal.Decimal
	QuoteAmount    decimal.Decimal
	BaseFilled     decimal.Decimal
	QuoteFilled    decimal.Decimal
	BaseRemaining  decimal.Decimal
	QuoteRemaining decimal.Decimal

	Processed bool
	Executed  bool
	Cancelled bool
	Closed    bool

	LadderIndex *int
	LadderState LadderState

	NotPlacedReason string
	ClosureCause    ClosureCause

	// MissedObservations counts consecutive getOrderDetails calls
	// that returned "unknown" for this order id; the reconciler
	// closes the order as externally cancelled on the second.
	MissedObservations int
}

// IsTerminal reports whether State will never change again.
func (o *Order) IsTerminal() bool {
	switch o.State {
	case StateFilled, StateClosed, StateRejected:
		return true
	default:
		return false
	}
}

// ValidTransitions mirrors the order state diagram.
var ValidTransitions = map[State][]State{
	StateNew:        {StateOpen, StateRejected},
	StateOpen:       {StatePartial, StateCancelling, StateClosed},
	StatePartial:    {StateFilled, StateCancelling},
	StateCancelling: {StateClosed},
	StateFilled:     {},
	StateClosed:     {},
	StateRejected:   {},
}

// CanTransition reports whether from -> to is a legal state transition.
func CanTransition(from, to State) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
