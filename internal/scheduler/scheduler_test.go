package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/models"
)

type fakeParams struct{ p models.TradeParams }

func (f fakeParams) Snapshot() models.TradeParams { return f.p }

type countingTicker struct{ count int32 }

func (c *countingTicker) Tick(ctx context.Context) { atomic.AddInt32(&c.count, 1) }

func fastParams(policy models.MmPolicy) models.TradeParams {
	return models.TradeParams{
		Active:      true,
		Policy:      policy,
		IntervalMin: time.Millisecond,
		IntervalMax: 2 * time.Millisecond,
	}
}

func TestSupervisor_RunsBothUnderOptimalPolicy(t *testing.T) {
	builder, liq := &countingTicker{}, &countingTicker{}
	s := New(fakeParams{p: fastParams(models.PolicyOptimal)}, builder, liq, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if atomic.LoadInt32(&builder.count) == 0 {
		t.Error("expected the order-book builder to have ticked at least once")
	}
	if atomic.LoadInt32(&liq.count) == 0 {
		t.Error("expected the liquidity provider to have ticked at least once")
	}
}

func TestSupervisor_DepthPolicySkipsBuilder(t *testing.T) {
	builder, liq := &countingTicker{}, &countingTicker{}
	s := New(fakeParams{p: fastParams(models.PolicyDepth)}, builder, liq, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if atomic.LoadInt32(&builder.count) != 0 {
		t.Errorf("expected the order-book builder not to run under policy depth, ticked %d times", builder.count)
	}
	if atomic.LoadInt32(&liq.count) == 0 {
		t.Error("expected the liquidity provider to still run under policy depth")
	}
}

func TestSupervisor_InactiveSkipsBoth(t *testing.T) {
	builder, liq := &countingTicker{}, &countingTicker{}
	p := fastParams(models.PolicyOptimal)
	p.Active = false
	s := New(fakeParams{p: p}, builder, liq, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if builder.count != 0 || liq.count != 0 {
		t.Errorf("expected no ticks while inactive, got builder=%d liq=%d", builder.count, liq.count)
	}
}

func TestNextInterval_FallsBackWhenDegenerate(t *testing.T) {
	s := New(fakeParams{p: models.TradeParams{}}, nil, nil, zap.NewNop().Sugar())
	if got := s.nextInterval(); got != 5*time.Second {
		t.Errorf("expected the 5s fallback, got %v", got)
	}
}
