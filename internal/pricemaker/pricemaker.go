// Package pricemaker places a single corrective order to push the
// last-traded price toward an ad-hoc target (spec §4.H).
package pricemaker

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/ledger"
	"github.com/dome/adamant-tradebot/internal/models"
	"github.com/dome/adamant-tradebot/pkg/utils"
)

// reliabilityMin/Max bound the factor multiplied onto the raw
// depth-walk amount to defeat races against other market participants
// consuming the same levels between the quote and the placement
// (spec §4.H, "reliability factor in [1.05, 1.1]").
var (
	reliabilityMin = decimal.NewFromFloat(1.05)
	reliabilityMax = decimal.NewFromFloat(1.10)
)

// PriceWatcherSource exposes the watcher's latest published band, used
// to correct the computed price/amount before placement per the
// open-question decision recorded in SPEC_FULL.md §9.2: the
// reliability factor is applied to the depth-walk result first, then
// price-watcher correction is applied uniformly like any other maker
// component's proposal.
type PriceWatcherSource interface {
	State() models.PriceWatcherState
}

// Maker runs the price-maker component instance for a pair.
type Maker struct {
	ledger  *ledger.Ledger
	adapter exchange.Adapter
	watcher PriceWatcherSource
	pair    string
	log     *zap.SugaredLogger
}

// New builds a Maker for pair.
func New(l *ledger.Ledger, adapter exchange.Adapter, watcher PriceWatcherSource, pair string, log *zap.SugaredLogger) *Maker {
	return &Maker{ledger: l, adapter: adapter, watcher: watcher, pair: pair, log: log}
}

// Report is returned to the command dispatcher after a Push attempt.
type Report struct {
	Success    bool
	BeforeRate decimal.Decimal
	AfterRate  decimal.Decimal
	Side       models.Side
	Amount     decimal.Decimal
	Price      decimal.Decimal
	Reason     string
}

// Push walks the order book toward target, places a single pm-order
// of the computed side/amount at target, and reports the before/after
// rates (spec §4.H). It is synchronous and not re-entrancy-guarded: it
// runs only on explicit command/watcher invocation, never on a
// schedule, so no concurrent Push for the same pair is expected.
func (m *Maker) Push(ctx context.Context, target decimal.Decimal) Report {
	before, err := m.adapter.GetRates(ctx, m.pair)
	if err != nil {
		return Report{Reason: fmt.Sprintf("rate fetch failed: %v", err)}
	}

	if target.Equal(before.Last) {
		return Report{Success: true, BeforeRate: before.Last, AfterRate: before.Last, Reason: "already at target"}
	}

	side := models.SideBuy
	if target.LessThan(before.Last) {
		side = models.SideSell
	}

	book, err := m.adapter.GetOrderBook(ctx, m.pair, 50)
	if err != nil {
		return Report{Reason: fmt.Sprintf("order book fetch failed: %v", err)}
	}

	// Pushing the price up consumes asks up to target; pushing it down
	// consumes bids up to target. Either way the walk is restricted to
	// levels at or better than target, since levels past it are not
	// needed to move the price that far.
	var levels []utils.PriceLevel
	if side == models.SideBuy {
		for _, lv := range book.Asks {
			if lv.Price.GreaterThan(target) {
				break
			}
			levels = append(levels, utils.PriceLevel{Price: lv.Price, Amount: lv.Amount})
		}
	} else {
		for _, lv := range book.Bids {
			if lv.Price.LessThan(target) {
				break
			}
			levels = append(levels, utils.PriceLevel{Price: lv.Price, Amount: lv.Amount})
		}
	}
	if len(levels) == 0 {
		return Report{Reason: "target is already within the best level, or the book is too thin to reach it"}
	}

	total := decimal.Zero
	for _, lv := range levels {
		total = total.Add(lv.Amount)
	}
	_, filled, _ := utils.DepthWalk(levels, total)
	if filled.Sign() <= 0 {
		return Report{Reason: "no depth available toward target"}
	}

	amount := filled.Mul(reliabilityFactor())

	price := target
	if m.watcher != nil {
		pw := m.watcher.State()
		if pw.IsActual && !pw.InBand(price) {
			price = decimal.Min(decimal.Max(price, pw.LowPrice), pw.HighPrice)
		}
	}

	req := exchange.PlaceRequest{Pair: m.pair, Side: side, IsLimit: true, Price: price, BaseAmount: amount}
	exchangeID, err := m.adapter.PlaceOrder(ctx, req)
	if err != nil {
		return Report{BeforeRate: before.Last, Reason: fmt.Sprintf("placement failed: %v", err)}
	}

	order := &models.Order{
		ExchangeOrderID: exchangeID,
		Pair:            m.pair,
		Side:            side,
		Type:            models.OrderTypeLimit,
		Purpose:         models.PurposePriceMaker,
		State:           models.StateOpen,
		Price:           price,
		BaseAmount:      amount,
		BaseRemaining:   amount,
		QuoteAmount:     amount.Mul(price),
		QuoteRemaining:  amount.Mul(price),
	}
	if err := m.ledger.Insert(ctx, order); err != nil {
		m.log.Errorw("price maker ledger insert failed after placement", "exchange_order_id", exchangeID, "err", err)
	}

	after, err := m.adapter.GetRates(ctx, m.pair)
	if err != nil {
		after = before
	}

	return Report{
		Success: true, BeforeRate: before.Last, AfterRate: after.Last,
		Side: side, Amount: amount, Price: price,
	}
}

// reliabilityFactor returns a value in [1.05, 1.10]. Deterministic
// midpoint rather than randomized: unlike the order-book builder's
// sampling, a single ad-hoc push has no repeated-pattern to obscure.
func reliabilityFactor() decimal.Decimal {
	return reliabilityMin.Add(reliabilityMax.Sub(reliabilityMin).Div(decimal.NewFromInt(2)))
}
