// Package obbuilder periodically places short-lived ob-purpose orders
// inside the visible order book to create synthetic depth, respecting
// the price-watcher band (spec §4.F).
package obbuilder

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

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

const maxNewOrdersPerTick = 5

// balanceWarnThrottle bounds how often an insufficient-balance warning
// is emitted, per spec §4.F step 4's "at most hourly."
const balanceWarnThrottle = time.Hour

// PriceWatcherSource exposes the watcher's latest published band.
type PriceWatcherSource interface {
	State() models.PriceWatcherState
}

// ParamsSource exposes the live TradeParams snapshot.
type ParamsSource interface {
	Snapshot() models.TradeParams
}

// Notifier delivers an operator-facing warning; callers are expected
// to already be throttling, but Builder also self-throttles.
type Notifier interface {
	Warn(source, message string)
}

// Builder runs one order-book-shaping component instance for a pair.
type Builder struct {
	ledger       *ledger.Ledger
	reconciler   *reconciler.Reconciler
	collector    *collector.Collector
	adapter      exchange.Adapter
	obCache      *cache.OrderBookCache
	balanceCache *cache.BalanceCache
	markets      *cache.MarketsCache
	watcher      PriceWatcherSource
	params       ParamsSource
	notifier     Notifier
	pair         string
	log          *zap.SugaredLogger

	running         int32
	lastBalanceWarn time.Time
}

// New builds a Builder for pair.
func New(
	l *ledger.Ledger,
	rec *reconciler.Reconciler,
	col *collector.Collector,
	adapter exchange.Adapter,
	obCache *cache.OrderBookCache,
	balanceCache *cache.BalanceCache,
	markets *cache.MarketsCache,
	watcher PriceWatcherSource,
	params ParamsSource,
	notifier Notifier,
	pair string,
	log *zap.SugaredLogger,
) *Builder {
	return &Builder{
		ledger: l, reconciler: rec, collector: col, adapter: adapter,
		obCache: obCache, balanceCache: balanceCache, markets: markets,
		watcher: watcher, params: params, notifier: notifier, pair: pair, log: log,
	}
}

// Tick runs one iteration. It is a no-op if the previous iteration has
// not finished (the re-entrancy guard from spec §4.F/§4.I).
func (b *Builder) Tick(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&b.running, 0, 1) {
		b.log.Debugw("ob builder tick skipped, previous iteration still running")
		return
	}
	defer atomic.StoreInt32(&b.running, 0)

	p := b.params.Snapshot()
	if !p.Active || !p.ObActive {
		return
	}

	if _, err := b.reconciler.Run(ctx, models.PurposeOrderBook, b.pair); err != nil {
		b.log.Errorw("ob builder reconcile failed", "err", err)
		return
	}

	b.collector.Run(ctx, collector.Selector{
		Purposes:    []models.Purpose{models.PurposeOrderBook},
		Pair:        b.pair,
		ExpiredOnly: true,
	}, "expired")

	pw := b.watcher.State()
	if p.PwActive && pw.IsActual {
		b.collector.Run(ctx, collector.Selector{
			Purposes:  []models.Purpose{models.PurposeOrderBook},
			Pair:      b.pair,
			OutOfBand: &collector.Band{Low: pw.LowPrice, High: pw.HighPrice},
		}, "outOfPwRange")
	}

	if p.PwActive && p.PwPolicy == models.PwPolicyStrict && !pw.IsActual {
		err := &apierrors.PriceWatcherUnavailable{Pair: b.pair, Policy: string(p.PwPolicy)}
		b.log.Warnw("ob builder blocking new placements", "err", err)
		return
	}

	open, err := b.ledger.FindOpen(ctx, models.PurposeOrderBook, b.pair)
	if err != nil {
		b.log.Errorw("ob builder failed to reload open orders", "err", err)
		return
	}
	metrics.SetOpenOrders(string(models.PurposeOrderBook), len(open))

	toPlace := p.OrderBookOrdersCount - len(open)
	if toPlace > maxNewOrdersPerTick {
		toPlace = maxNewOrdersPerTick
	}
	if toPlace <= 0 {
		return
	}

	book, ok := b.orderBook(ctx)
	if !ok || (len(book.Bids) < 2 && len(book.Asks) < 2) {
		b.log.Debugw("ob builder skipped, insufficient visible book depth")
		return
	}

	market, _ := b.markets.Descriptor(b.pair)

	for i := 0; i < toPlace; i++ {
		b.placeOne(ctx, p, pw, book, market)
	}
}

func (b *Builder) orderBook(ctx context.Context) (exchange.OrderBookSnapshot, bool) {
	if snap, fresh, ok := b.obCache.Get(b.pair); ok && fresh {
		return snap, true
	}
	snap, err := b.adapter.GetOrderBook(ctx, b.pair, 20)
	if err != nil {
		b.log.Warnw("ob builder order book fetch failed", "err", err)
		if snap, _, ok := b.obCache.Get(b.pair); ok {
			return snap, true
		}
		return exchange.OrderBookSnapshot{}, false
	}
	b.obCache.Set(b.pair, snap)
	return snap, true
}

func (b *Builder) placeOne(ctx context.Context, p models.TradeParams, pw models.PriceWatcherState, book exchange.OrderBookSnapshot, market models.MarketDescriptor) {
	side := models.SideSell
	if rand.Float64()*100 < p.BuyPercent.InexactFloat64() {
		side = models.SideBuy
	}

	levels := book.Asks
	if side == models.SideBuy {
		levels = book.Bids
	}

	height := p.OrderBookHeight
	if height < 2 {
		height = 2
	}
	maxPos := len(levels)
	if maxPos > height {
		maxPos = height
	}
	if maxPos < 2 {
		return
	}
	position := 2 + rand.Intn(maxPos-1)

	price := gapPrice(levels, position, market.PriceTick)
	if p.PwActive && pw.IsActual && !pw.InBand(price) {
		price = correctToBand(price, pw, levels, height)
	}

	amount := sampleAmount(p)

	lifetime := lifetimeFor(p, position, b.adapter.Features().OrderNumberLimit)
	expires := time.Now().Add(lifetime)

	if !b.hasSufficientBalance(side, price, amount, market) {
		b.warnInsufficientBalance()
		return
	}

	req := exchange.PlaceRequest{Pair: b.pair, Side: side, IsLimit: true, Price: price, BaseAmount: amount}
	exchangeID, err := b.adapter.PlaceOrder(ctx, req)
	if err != nil {
		metrics.RecordRejected(string(models.PurposeOrderBook))
		b.log.Warnw("ob builder place failed", "side", side, "price", price, "err", err)
		return
	}
	metrics.RecordPlaced(string(models.PurposeOrderBook))

	order := &models.Order{
		ExchangeOrderID: exchangeID,
		Pair:            b.pair,
		Side:            side,
		Type:            models.OrderTypeLimit,
		Purpose:         models.PurposeOrderBook,
		State:           models.StateOpen,
		ExpiresAt:       &expires,
		Price:           price,
		BaseAmount:      amount,
		BaseRemaining:   amount,
	}
	if err := b.ledger.Insert(ctx, order); err != nil {
		b.log.Errorw("ob builder ledger insert failed after placement", "exchange_order_id", exchangeID, "err", err)
	}
	b.balanceCache.Invalidate()
}

// gapPrice picks a price uniformly between the levels at position-1
// and position, exclusive by one tick; if the gap collapses below one
// tick, it falls back to the adjacent level's price.
func gapPrice(levels []exchange.PriceLevel, position int, tick decimal.Decimal) decimal.Decimal {
	inner := levels[position-2].Price
	outer := levels[position-1].Price

	lo, hi := inner, outer
	if hi.LessThan(lo) {
		lo, hi = hi, lo
	}
	gap := hi.Sub(lo)
	if tick.Sign() > 0 {
		gap = gap.Sub(tick)
	}
	if gap.Sign() <= 0 {
		return outer
	}

	offset := decimal.NewFromFloat(rand.Float64()).Mul(gap)
	price := lo.Add(offset)
	if tick.Sign() > 0 {
		price = roundToTick(price, tick)
	}
	return price
}

func roundToTick(value, tick decimal.Decimal) decimal.Decimal {
	if tick.Sign() <= 0 {
		return value
	}
	return value.Div(tick).Round(0).Mul(tick)
}

// correctToBand resamples price inside [low, high], biased toward the
// nearest visible level within height, with a ±5% soft padding when
// the band edge lies outside the visible window.
func correctToBand(price decimal.Decimal, pw models.PriceWatcherState, levels []exchange.PriceLevel, height int) decimal.Decimal {
	low, high := pw.LowPrice, pw.HighPrice
	pad := high.Sub(low).Mul(decimal.NewFromFloat(0.05))

	visibleLow, visibleHigh := low, high
	n := len(levels)
	if n > height {
		n = height
	}
	if n > 0 {
		last := levels[n-1].Price
		if last.LessThan(visibleLow) {
			visibleLow = last.Sub(pad)
		}
		if last.GreaterThan(visibleHigh) {
			visibleHigh = last.Add(pad)
		}
	}

	lo, hi := low, high
	if visibleLow.GreaterThan(lo) {
		lo = visibleLow
	}
	if visibleHigh.LessThan(hi) {
		hi = visibleHigh
	}
	if hi.LessThan(lo) {
		lo, hi = hi, lo
	}
	span := hi.Sub(lo)
	if span.Sign() <= 0 {
		return lo
	}
	return lo.Add(decimal.NewFromFloat(rand.Float64()).Mul(span))
}

// sampleAmount draws a base amount uniformly in
// [amountMin, amountMax * orderBookMaxOrderPercent / 100], with a
// floor of amountMin * 1.1 when the range would otherwise collapse.
func sampleAmount(p models.TradeParams) decimal.Decimal {
	upper := p.AmountMax.Mul(p.OrderBookMaxOrderPercent).Div(decimal.NewFromInt(100))
	lower := p.AmountMin
	if upper.LessThanOrEqual(lower) {
		lower = p.AmountMin.Mul(decimal.NewFromFloat(1.1))
		upper = lower
	}
	span := upper.Sub(lower)
	if span.Sign() <= 0 {
		return lower
	}
	return lower.Add(decimal.NewFromFloat(rand.Float64()).Mul(span))
}

// lifetimeFor implements floor(U(1500, M*500) * cbrt(position)) ms,
// scaled down when orderNumberLimit caps outstanding orders per pair
// below the configured order count: with fewer slots available than
// the book wants to maintain, each order must expire faster so the
// full ladder still cycles through within the cap.
func lifetimeFor(p models.TradeParams, position, orderNumberLimit int) time.Duration {
	maxMs := float64(p.OrderBookOrdersCount) * 500
	if maxMs < 1500 {
		maxMs = 1500
	}
	base := 1500 + rand.Float64()*(maxMs-1500)
	scaled := base * math.Cbrt(float64(position))

	if orderNumberLimit > 0 && orderNumberLimit < p.OrderBookOrdersCount {
		scaled *= float64(orderNumberLimit) / float64(p.OrderBookOrdersCount)
	}

	return time.Duration(math.Floor(scaled)) * time.Millisecond
}

func (b *Builder) hasSufficientBalance(side models.Side, price, amount decimal.Decimal, market models.MarketDescriptor) bool {
	coin := market.Base
	needed := amount
	if side == models.SideBuy {
		coin = market.Quote
		needed = amount.Mul(price)
	}
	entry, ok := b.balanceCache.Get(coin)
	if !ok {
		return false
	}
	return entry.Free.GreaterThanOrEqual(needed)
}

func (b *Builder) warnInsufficientBalance() {
	if time.Since(b.lastBalanceWarn) < balanceWarnThrottle {
		return
	}
	b.lastBalanceWarn = time.Now()
	if b.notifier != nil {
		b.notifier.Warn("obbuilder", "insufficient balance to place an order-book order for "+b.pair)
	}
}
