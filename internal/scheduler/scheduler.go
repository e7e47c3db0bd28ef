// Package scheduler is the supervisor owning the top-level activity
// flag and policy tag that gate the order-book builder and liquidity
// provider, and the jittered timer loop that drives both (spec §4.I).
// Grounded on
// _examples/svyatogor45-abitrage/internal/bot/engine.go's
// periodicTasks' per-task ticker/select loop, generalized from fixed
// tickers to a jittered timer re-armed after every tick so consecutive
// intervals vary instead of drifting in lockstep.
package scheduler

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/metrics"
	"github.com/dome/adamant-tradebot/internal/models"
)

// ParamsSource exposes the live TradeParams snapshot.
type ParamsSource interface {
	Snapshot() models.TradeParams
}

// Ticker is satisfied by obbuilder.Builder and liquidity.Provider: a
// single blocking Tick call per invocation, internally re-entrancy
// guarded.
type Ticker interface {
	Tick(ctx context.Context)
}

// Supervisor runs the order-book builder and liquidity provider on
// independent jittered schedules, gated by TradeParams.Active and
// TradeParams.Policy. The price maker is not scheduled here: spec
// §4.I states it "runs independently on demand," invoked directly by
// the command dispatcher.
type Supervisor struct {
	params  ParamsSource
	builder Ticker
	liq     Ticker
	log     *zap.SugaredLogger
}

// New builds a Supervisor. builder and liq may be nil, in which case
// that component's loop never runs (useful for a pair configured
// without order-book shaping, for instance).
func New(params ParamsSource, builder, liq Ticker, log *zap.SugaredLogger) *Supervisor {
	return &Supervisor{params: params, builder: builder, liq: liq, log: log}
}

// Run starts both component loops and blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	done := make(chan struct{}, 2)
	if s.builder != nil {
		go func() {
			s.loop(ctx, "builder", s.runsOrderBook, s.builder.Tick)
			done <- struct{}{}
		}()
	} else {
		done <- struct{}{}
	}
	if s.liq != nil {
		go func() {
			s.loop(ctx, "liquidity", s.runsLiquidity, s.liq.Tick)
			done <- struct{}{}
		}()
	} else {
		done <- struct{}{}
	}
	<-done
	<-done
}

// runsOrderBook reports whether the order-book builder should run
// under the current policy: only the "regular" set {optimal, spread}
// (spec §4.I).
func (s *Supervisor) runsOrderBook(p models.TradeParams) bool {
	return p.Policy == models.PolicyOptimal || p.Policy == models.PolicySpread
}

// runsLiquidity reports whether the liquidity provider should run:
// every policy runs it, including "depth" ("only G runs, without
// volume-generating corrections" — spec §4.I).
func (s *Supervisor) runsLiquidity(models.TradeParams) bool {
	return true
}

// loop is the generic jittered-interval gate described literally in
// spec §4.I's pseudocode: check activity-flag and policy-match, tick
// if clear, then always schedule the next run in U(min, max).
func (s *Supervisor) loop(ctx context.Context, name string, gate func(models.TradeParams) bool, tick func(context.Context)) {
	timer := time.NewTimer(s.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p := s.params.Snapshot()
			if p.Active && gate(p) {
				start := time.Now()
				tick(ctx)
				metrics.RecordTick(name, float64(time.Since(start).Milliseconds()))
			} else {
				s.log.Debugw("scheduler skipped component", "component", name, "active", p.Active, "policy", p.Policy)
			}
			timer.Reset(s.nextInterval())
		}
	}
}

// nextInterval draws U(IntervalMin, IntervalMax) from the current
// TradeParams snapshot, falling back to a safe default if the range
// is degenerate (not yet configured, or min > max).
func (s *Supervisor) nextInterval() time.Duration {
	p := s.params.Snapshot()
	lo, hi := p.IntervalMin, p.IntervalMax
	if lo <= 0 || hi <= lo {
		return 5 * time.Second
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}
