// Package pricewatcher maintains the allowed price band for the
// traded pair, sourced from either an operator-provided numeric range
// or another market's order book on any supported exchange (spec
// §4.E). It publishes its state atomically for every other maker
// component to consult before placing an order.
package pricewatcher

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/models"
	"github.com/dome/adamant-tradebot/internal/pricemaker"
)

// ParamsSource exposes the slice of TradeParams the watcher needs; in
// production this is *tradeparams.Store.
type ParamsSource interface {
	Snapshot() models.TradeParams
}

// anomalyConfirmTicks is how many consecutive ticks a divergent range
// must persist before it is accepted as the new band, per spec §4.E
// step 2's "suppress updates until N consecutive ticks confirm."
const anomalyConfirmTicks = 3

// staleGrace is how long a "smart" policy keeps serving the last-known
// band after the source stops answering, before treating it as
// not-actual.
const staleGrace = 30 * time.Second

// RateConverter converts an amount denominated in from into the
// traded pair's quote currency. It is a thin seam over the external
// rate-info service (out of scope for this repository); ok is false
// when the conversion could not be performed.
type RateConverter interface {
	ConvertToQuote(ctx context.Context, amount decimal.Decimal, from, quote string) (value decimal.Decimal, ok bool)
}

// AdapterProvider resolves an exchange.Adapter by exchange name,
// caching connections across calls. Used only by the market source to
// reach a venue other than the agent's primary exchange.
type AdapterProvider interface {
	Adapter(ctx context.Context, exchangeName string) (exchange.Adapter, error)
}

// RateSource exposes the traded pair's current last-traded price, used
// to detect when it has escaped the published band under the "fill"
// action. Satisfied by exchange.Adapter.
type RateSource interface {
	GetRates(ctx context.Context, pair string) (exchange.RateInfo, error)
}

// PricePusher issues a corrective pm-order toward target, implemented
// by *pricemaker.Maker. Wired in after construction (SetPusher) since
// the maker itself depends on the watcher's published state.
type PricePusher interface {
	Push(ctx context.Context, target decimal.Decimal) pricemaker.Report
}

// Watcher runs the background price-band coroutine.
type Watcher struct {
	params   ParamsSource
	adapters AdapterProvider
	rates    RateConverter
	rater    RateSource
	pusher   PricePusher
	log      *zap.SugaredLogger
	pair     string

	mu    sync.RWMutex
	state models.PriceWatcherState

	pendingMu     sync.Mutex
	pendingRange  *candidateRange
	pendingStreak int
}

type candidateRange struct {
	low, mid, high decimal.Decimal
}

// New builds a Watcher for pair, reading policy from params. rater
// resolves the traded pair's own current price for "fill"-action
// escape detection; it may be nil, in which case the fill action never
// fires (no pusher is set either, until SetPusher is called).
func New(params ParamsSource, adapters AdapterProvider, rates RateConverter, rater RateSource, pair string, log *zap.SugaredLogger) *Watcher {
	return &Watcher{params: params, adapters: adapters, rates: rates, rater: rater, pair: pair, log: log}
}

// SetPusher wires the price maker in after construction, breaking the
// constructor cycle between Watcher (needs a pusher) and Maker (needs
// a PriceWatcherSource).
func (w *Watcher) SetPusher(p PricePusher) {
	w.pusher = p
}

// State returns the last published band. Safe for concurrent use by
// every maker component.
func (w *Watcher) State() models.PriceWatcherState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Run blocks, ticking the watcher every 1-3s until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		wait := time.Duration(1000+rand.Intn(2001)) * time.Millisecond
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one evaluation of the band and publishes the result.
// Exported so the scheduler/supervisor and tests can drive it directly
// without waiting on Run's jittered timer.
func (w *Watcher) Tick(ctx context.Context) {
	p := w.params.Snapshot()
	if !p.PwActive {
		return
	}

	var candidate candidateRange
	var actual bool

	switch p.PwSource {
	case models.PwSourceMarket:
		candidate, actual = w.loadMarketRange(ctx, p)
	default:
		candidate, actual = w.loadNumericRange(ctx, p)
	}

	prev := w.State()

	if !actual {
		w.publishStale(prev, p)
		return
	}

	if w.isAnomalous(prev, candidate, p) {
		w.pendingMu.Lock()
		if w.pendingRange == nil || !sameRange(*w.pendingRange, candidate) {
			w.pendingRange = &candidate
			w.pendingStreak = 1
		} else {
			w.pendingStreak++
		}
		confirmed := w.pendingStreak >= anomalyConfirmTicks
		w.pendingMu.Unlock()

		if !confirmed {
			w.mu.Lock()
			w.state.IsPriceAnomaly = true
			w.mu.Unlock()
			return
		}
	} else {
		w.pendingMu.Lock()
		w.pendingRange = nil
		w.pendingStreak = 0
		w.pendingMu.Unlock()
	}

	w.mu.Lock()
	w.state = models.PriceWatcherState{
		LowPrice:         candidate.low,
		MidPrice:         candidate.mid,
		HighPrice:        candidate.high,
		DeviationPercent: p.PwDeviationPct,
		Source:           sourceLabel(p),
		IsActual:         true,
		IsPriceAnomaly:   false,
		LastUpdated:      now(),
	}
	w.mu.Unlock()

	if p.PwAction == models.PwActionFill {
		w.enforceFillAction(ctx, w.State())
	}
}

// enforceFillAction implements spec §4.E's "fill" action: when the
// traded pair's current price has escaped the just-published band, the
// price maker is instructed to push it back to the nearest edge. Under
// "prevent" no counter-order is placed; the out-of-band orders are
// instead left for the maker components' own collector passes to
// cancel.
func (w *Watcher) enforceFillAction(ctx context.Context, state models.PriceWatcherState) {
	if w.pusher == nil || w.rater == nil || !state.IsActual {
		return
	}

	rates, err := w.rater.GetRates(ctx, w.pair)
	if err != nil {
		w.log.Warnw("price watcher fill-action rate fetch failed", "err", err)
		return
	}
	if state.InBand(rates.Last) {
		return
	}

	target := state.LowPrice
	if rates.Last.GreaterThan(state.HighPrice) {
		target = state.HighPrice
	}

	report := w.pusher.Push(ctx, target)
	if !report.Success {
		w.log.Warnw("price watcher fill-action push failed", "target", target, "reason", report.Reason)
		return
	}
	w.log.Infow("price watcher pushed price back into band", "target", target, "after", report.AfterRate)
}

func (w *Watcher) publishStale(prev models.PriceWatcherState, p models.TradeParams) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev.LastUpdated.IsZero() {
		w.state.IsActual = false
		return
	}

	if p.PwPolicy == models.PwPolicySmart && now().Sub(prev.LastUpdated) < staleGrace {
		// Keep serving the last-known band; only the isActual flag
		// would change, and it hasn't crossed the grace window yet.
		return
	}

	w.state.IsActual = false
}

func (w *Watcher) loadNumericRange(ctx context.Context, p models.TradeParams) (candidateRange, bool) {
	if p.PwRangeLow.IsZero() && p.PwRangeHigh.IsZero() {
		return candidateRange{}, false
	}

	low, lowOK := w.convert(ctx, p.PwRangeLow)
	high, highOK := w.convert(ctx, p.PwRangeHigh)
	if !lowOK || !highOK {
		return candidateRange{}, false
	}

	mid := low.Add(high).Div(decimal.NewFromInt(2))
	return candidateRange{low: low, mid: mid, high: high}, true
}

func (w *Watcher) convert(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, bool) {
	if w.rates == nil {
		return amount, true
	}
	return w.rates.ConvertToQuote(ctx, amount, "", w.quoteCurrency())
}

func (w *Watcher) quoteCurrency() string {
	parts := strings.SplitN(w.pair, "/", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return w.pair
}

func (w *Watcher) loadMarketRange(ctx context.Context, p models.TradeParams) (candidateRange, bool) {
	if p.PwMarketPair == "" || p.PwMarketExchange == "" || w.adapters == nil {
		return candidateRange{}, false
	}

	adapter, err := w.adapters.Adapter(ctx, p.PwMarketExchange)
	if err != nil {
		w.log.Warnw("price watcher could not resolve market-source adapter", "exchange", p.PwMarketExchange, "err", err)
		return candidateRange{}, false
	}

	book, err := adapter.GetOrderBook(ctx, p.PwMarketPair, 10)
	if err != nil {
		w.log.Warnw("price watcher order book fetch failed", "pair", p.PwMarketPair, "err", err)
		return candidateRange{}, false
	}

	bestBid := book.BestBid()
	bestAsk := book.BestAsk()
	if bestBid.Price.IsZero() || bestAsk.Price.IsZero() {
		return candidateRange{}, false
	}

	smartBid, smartAsk := smartQuotes(book)
	mid := smartBid.Add(smartAsk).Div(decimal.NewFromInt(2))

	deviation := p.PwDeviationPct
	if deviation.IsZero() {
		deviation = decimal.NewFromInt(1)
	}
	span := mid.Mul(deviation).Div(decimal.NewFromInt(100))

	return candidateRange{
		low:  smartBid.Sub(span),
		mid:  mid,
		high: smartAsk.Add(span),
	}, true
}

// smartQuotes derives a depth-weighted bid/ask rather than the raw
// best quote, so a single thin top-of-book level can't swing the band.
func smartQuotes(book exchange.OrderBookSnapshot) (bid, ask decimal.Decimal) {
	bid = weightedTop(book.Bids)
	ask = weightedTop(book.Asks)
	return bid, ask
}

func weightedTop(levels []exchange.PriceLevel) decimal.Decimal {
	if len(levels) == 0 {
		return decimal.Zero
	}
	n := len(levels)
	if n > 5 {
		n = 5
	}
	var weightedSum, totalWeight decimal.Decimal
	for _, l := range levels[:n] {
		weightedSum = weightedSum.Add(l.Price.Mul(l.Amount))
		totalWeight = totalWeight.Add(l.Amount)
	}
	if totalWeight.IsZero() {
		return levels[0].Price
	}
	return weightedSum.Div(totalWeight)
}

func (w *Watcher) isAnomalous(prev models.PriceWatcherState, candidate candidateRange, p models.TradeParams) bool {
	if !prev.IsActual || prev.LastUpdated.IsZero() {
		return false
	}
	threshold := p.PwDeviationPct
	if threshold.IsZero() {
		threshold = decimal.NewFromInt(5)
	}
	if prev.MidPrice.IsZero() {
		return false
	}
	moved := candidate.mid.Sub(prev.MidPrice).Abs().Div(prev.MidPrice).Mul(decimal.NewFromInt(100))
	return moved.GreaterThan(threshold)
}

func sameRange(a, b candidateRange) bool {
	return a.low.Equal(b.low) && a.high.Equal(b.high)
}

func sourceLabel(p models.TradeParams) string {
	if p.PwSource == models.PwSourceMarket {
		return "market:" + p.PwMarketPair + "@" + p.PwMarketExchange
	}
	return "numeric"
}

var now = time.Now
