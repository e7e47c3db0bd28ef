// Package liquidity maintains the standing-liquidity budget of bids
// and asks the agent always keeps resting in the book, distributed
// within a spread around a trend anchor (spec §4.G). Grounded on the
// anchor-relative re-pricing idiom in
// realmfikri-Limitless/bots/spread_capture_bot.go (re-price once the
// mid has drifted past a threshold from the last anchor) combined
// with this repository's own ledger/reconciler/collector wiring.
package liquidity

import (
	"context"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/apierrors"
	"github.com/dome/adamant-tradebot/internal/cache"
	"github.com/dome/adamant-tradebot/internal/collector"
	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/ledger"
	"github.com/dome/adamant-tradebot/internal/metrics"
	"github.com/dome/adamant-tradebot/internal/models"
	"github.com/dome/adamant-tradebot/internal/reconciler"
)

// levelCount is how many rungs each side's pool is split across.
// weights must sum to 1 and run nearest-to-mid first.
const levelCount = 3

var levelWeights = [levelCount]decimal.Decimal{
	decimal.NewFromFloat(0.5),
	decimal.NewFromFloat(0.3),
	decimal.NewFromFloat(0.2),
}

const maxNewOrdersPerTick = levelCount

// PriceWatcherSource exposes the watcher's latest published band, used
// only for its mid price as the preferred trend anchor.
type PriceWatcherSource interface {
	State() models.PriceWatcherState
}

// ParamsSource exposes the live TradeParams snapshot.
type ParamsSource interface {
	Snapshot() models.TradeParams
}

// Provider runs the liquidity-provider component instance for a pair.
type Provider struct {
	ledger     *ledger.Ledger
	reconciler *reconciler.Reconciler
	collector  *collector.Collector
	adapter    exchange.Adapter
	watcher    PriceWatcherSource
	params     ParamsSource
	markets    *cache.MarketsCache
	pair       string
	log        *zap.SugaredLogger

	running int32

	lastTrend   models.Trend
	lastAnchor  decimal.Decimal
	resetSignal int32
}

// New builds a Provider for pair.
func New(
	l *ledger.Ledger,
	rec *reconciler.Reconciler,
	col *collector.Collector,
	adapter exchange.Adapter,
	watcher PriceWatcherSource,
	params ParamsSource,
	markets *cache.MarketsCache,
	pair string,
	log *zap.SugaredLogger,
) *Provider {
	return &Provider{
		ledger: l, reconciler: rec, collector: col, adapter: adapter,
		watcher: watcher, params: params, markets: markets, pair: pair, log: log,
	}
}

// ResetLiqLimits signals the next Tick to cancel every standing
// liq-order and reseed from scratch, per spec §4.G's "explicit
// resetLiqLimits signal (policy change, new liquidity set)."
func (p *Provider) ResetLiqLimits(reason models.ResetLiqLimits) {
	p.log.Infow("liquidity reset signaled", "reason", reason.Reason)
	atomic.StoreInt32(&p.resetSignal, 1)
}

// Tick runs one iteration. No-op if the previous iteration has not
// finished (the re-entrancy guard from spec §4.I).
func (p *Provider) Tick(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		p.log.Debugw("liquidity tick skipped, previous iteration still running")
		return
	}
	defer atomic.StoreInt32(&p.running, 0)

	params := p.params.Snapshot()
	if !params.Active || !params.LiqActive {
		return
	}

	if _, err := p.reconciler.Run(ctx, models.PurposeLiquidity, p.pair); err != nil {
		p.log.Errorw("liquidity reconcile failed", "err", err)
		return
	}

	if params.PwActive && p.watcher != nil && params.PwPolicy == models.PwPolicyStrict && !p.watcher.State().IsActual {
		err := &apierrors.PriceWatcherUnavailable{Pair: p.pair, Policy: string(params.PwPolicy)}
		p.log.Warnw("liquidity blocking new placements", "err", err)
		return
	}

	mid, ok := p.anchor(ctx, params)
	if !ok {
		p.log.Debugw("liquidity tick skipped, no trend anchor available")
		return
	}

	if atomic.CompareAndSwapInt32(&p.resetSignal, 1, 0) || params.LiquidityTrend != p.lastTrend {
		res := p.collector.Run(ctx, collector.Selector{
			Purposes: []models.Purpose{models.PurposeLiquidity},
			Pair:     p.pair,
			Force:    true,
		}, "resetLiqLimits")
		p.log.Infow("liquidity pools reset", "result", res.LogMessage)
		p.lastTrend = params.LiquidityTrend
	}
	p.lastAnchor = mid

	levels := buildLevels(mid, params)

	p.cancelOutOfSpread(ctx, levels)

	open, err := p.ledger.FindOpen(ctx, models.PurposeLiquidity, p.pair)
	if err != nil {
		p.log.Errorw("liquidity failed to reload open orders", "err", err)
		return
	}
	asksOpen, bidsOpen := partition(open)
	metrics.SetOpenOrders(string(models.PurposeLiquidity), len(open))

	market, _ := p.markets.Descriptor(p.pair)

	p.fillSide(ctx, models.SideSell, levels.asks, asksOpen, params.LiquiditySellAmount, market)
	p.fillSide(ctx, models.SideBuy, levels.bids, bidsOpen, params.LiquidityBuyQuoteAmount, market)
}

// anchor resolves the trend anchor price: the price watcher's mid when
// enabled-and-actual, otherwise the exchange's last-traded price.
func (p *Provider) anchor(ctx context.Context, params models.TradeParams) (decimal.Decimal, bool) {
	if params.PwActive && p.watcher != nil {
		state := p.watcher.State()
		if state.IsActual && state.MidPrice.Sign() > 0 {
			return state.MidPrice, true
		}
	}
	rates, err := p.adapter.GetRates(ctx, p.pair)
	if err != nil {
		p.log.Warnw("liquidity anchor rate fetch failed", "err", err)
		return decimal.Zero, false
	}
	if rates.Last.Sign() <= 0 {
		return decimal.Zero, false
	}
	return rates.Last, true
}

type level struct {
	price  decimal.Decimal
	weight decimal.Decimal
}

type levelSet struct {
	asks []level
	bids []level
	low  decimal.Decimal
	high decimal.Decimal
}

// buildLevels lays out levelCount rungs per side around mid, skewed by
// trend: uptrend pushes asks further out (sell high) and pulls bids
// closer (buy quick before price runs away); downtrend is the mirror.
func buildLevels(mid decimal.Decimal, p models.TradeParams) levelSet {
	askMult, bidMult := decimal.NewFromInt(1), decimal.NewFromInt(1)
	switch p.LiquidityTrend {
	case models.TrendUptrend:
		askMult = decimal.NewFromFloat(1.3)
		bidMult = decimal.NewFromFloat(0.7)
	case models.TrendDowntrend:
		askMult = decimal.NewFromFloat(0.7)
		bidMult = decimal.NewFromFloat(1.3)
	}

	spread := p.LiquiditySpreadPercent
	hundred := decimal.NewFromInt(100)
	three := decimal.NewFromInt(levelCount)

	var ls levelSet
	for i := 0; i < levelCount; i++ {
		rung := decimal.NewFromInt(int64(i + 1)).Div(three)
		askOffset := mid.Mul(spread).Mul(rung).Mul(askMult).Div(hundred)
		bidOffset := mid.Mul(spread).Mul(rung).Mul(bidMult).Div(hundred)
		ls.asks = append(ls.asks, level{price: mid.Add(askOffset), weight: levelWeights[i]})
		ls.bids = append(ls.bids, level{price: mid.Sub(bidOffset), weight: levelWeights[i]})
	}

	maxOffset := mid.Mul(spread).Mul(decimal.NewFromFloat(1.3)).Div(hundred)
	ls.low = mid.Sub(maxOffset)
	ls.high = mid.Add(maxOffset)
	return ls
}

// cancelOutOfSpread cancels standing liq-orders priced outside the
// current band; a shrinking spread configuration must not leave stale
// rungs resting past the new edge.
func (p *Provider) cancelOutOfSpread(ctx context.Context, levels levelSet) {
	p.collector.Run(ctx, collector.Selector{
		Purposes:  []models.Purpose{models.PurposeLiquidity},
		Pair:      p.pair,
		OutOfBand: &collector.Band{Low: levels.low, High: levels.high},
	}, "outOfPwRange")
}

func partition(open []*models.Order) (asks, bids []*models.Order) {
	for _, o := range open {
		if o.Side == models.SideSell {
			asks = append(asks, o)
		} else {
			bids = append(bids, o)
		}
	}
	return asks, bids
}

// fillSide computes the delta between the configured pool total and
// the currently-resting total, then places orders across whichever
// levels are under-filled to close the gap, up to maxNewOrdersPerTick.
func (p *Provider) fillSide(ctx context.Context, side models.Side, levels []level, open []*models.Order, poolTotal decimal.Decimal, market models.MarketDescriptor) {
	live := decimal.Zero
	for _, o := range open {
		if side == models.SideSell {
			live = live.Add(o.BaseRemaining)
		} else {
			live = live.Add(o.QuoteRemaining)
		}
	}

	delta := poolTotal.Sub(live)
	if delta.Sign() <= 0 {
		return
	}

	placed := 0
	for _, lvl := range levels {
		if placed >= maxNewOrdersPerTick {
			break
		}
		share := poolTotal.Mul(lvl.weight)
		if share.Sign() <= 0 {
			continue
		}
		if delta.LessThan(share) {
			share = delta
		}
		if share.Sign() <= 0 {
			continue
		}

		var baseAmount decimal.Decimal
		if side == models.SideSell {
			baseAmount = share
		} else {
			if lvl.price.Sign() <= 0 {
				continue
			}
			baseAmount = share.Div(lvl.price)
		}
		if market.MinAmount.Sign() > 0 && baseAmount.LessThan(market.MinAmount) {
			continue
		}

		p.placeOne(ctx, side, lvl.price, baseAmount)
		placed++
		delta = delta.Sub(share)
		if delta.Sign() <= 0 {
			break
		}
	}
}

func (p *Provider) placeOne(ctx context.Context, side models.Side, price, amount decimal.Decimal) {
	req := exchange.PlaceRequest{Pair: p.pair, Side: side, IsLimit: true, Price: price, BaseAmount: amount}
	exchangeID, err := p.adapter.PlaceOrder(ctx, req)
	if err != nil {
		metrics.RecordRejected(string(models.PurposeLiquidity))
		p.log.Warnw("liquidity place failed", "side", side, "price", price, "err", err)
		return
	}
	metrics.RecordPlaced(string(models.PurposeLiquidity))

	order := &models.Order{
		ExchangeOrderID: exchangeID,
		Pair:            p.pair,
		Side:            side,
		Type:            models.OrderTypeLimit,
		Purpose:         models.PurposeLiquidity,
		State:           models.StateOpen,
		Price:           price,
		BaseAmount:      amount,
		BaseRemaining:   amount,
		QuoteAmount:     amount.Mul(price),
		QuoteRemaining:  amount.Mul(price),
	}
	if err := p.ledger.Insert(ctx, order); err != nil {
		p.log.Errorw("liquidity ledger insert failed after placement", "exchange_order_id", exchangeID, "err", err)
	}
}
