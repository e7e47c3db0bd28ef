// Package reconciler refreshes ledger entries against live exchange
// state: detects fills, partial fills, external cancellations and
// disappearances (spec §4.C). It must run before any maker iteration
// that needs an accurate count of open orders of a given purpose.
package reconciler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/apierrors"
	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/ledger"
	"github.com/dome/adamant-tradebot/internal/metrics"
	"github.com/dome/adamant-tradebot/internal/models"
)

// Result summarizes one reconciliation pass over a purpose/pair.
type Result struct {
	Checked    int
	Filled     int
	Cancelled  int
	Unknown    int
	ClosedNow  int
	Transient  int
}

// Reconciler refreshes ledger rows against one exchange adapter.
type Reconciler struct {
	ledger  *ledger.Ledger
	adapter exchange.Adapter
	log     *zap.SugaredLogger
}

// New builds a Reconciler for adapter, writing through l.
func New(l *ledger.Ledger, adapter exchange.Adapter, log *zap.SugaredLogger) *Reconciler {
	return &Reconciler{ledger: l, adapter: adapter, log: log}
}

// Run reconciles every open ledger order for pair, optionally filtered
// to one purpose ("" matches any purpose). Implements spec §4.C steps
// 1-5: unknown-twice escapes to externally-cancelled, transient errors
// leave the row untouched for next tick's retry.
func (r *Reconciler) Run(ctx context.Context, purpose models.Purpose, pair string) (Result, error) {
	open, err := r.ledger.FindOpen(ctx, purpose, pair)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, o := range open {
		res.Checked++
		if err := r.reconcileOne(ctx, o); err != nil {
			var transient *apierrors.TransientAPIError
			if errors.As(err, &transient) {
				res.Transient++
				continue
			}
			r.log.Errorw("reconcile order failed", "internal_id", o.InternalID, "err", err)
			continue
		}
		switch o.State {
		case models.StateFilled:
			res.Filled++
			res.ClosedNow++
		case models.StateClosed:
			res.Cancelled++
			res.ClosedNow++
		}
	}
	return res, nil
}

// reconcileOne mutates o in place to reflect its post-reconcile state
// and writes the corresponding ledger patch.
func (r *Reconciler) reconcileOne(ctx context.Context, o *models.Order) error {
	detail, err := r.adapter.GetOrderDetails(ctx, o.ExchangeOrderID, o.Pair)
	if err != nil {
		var transient *apierrors.TransientAPIError
		if errors.As(err, &transient) {
			return err
		}
		// Any other adapter error on a detail lookup is treated like an
		// unknown-order observation: the exchange could not answer.
		return r.handleUnknown(ctx, o)
	}

	switch detail.Status {
	case exchange.DetailFilled:
		o.State = models.StateFilled
		o.Closed = true
		o.Executed = true
		patch := ledger.Patch{
			State:       statePtr(models.StateFilled),
			BaseFilled:  &detail.FilledBase,
			QuoteFilled: &detail.FilledQuote,
			Closed:      boolPtr(true),
			Executed:    boolPtr(true),
		}
		cause := models.ClosureFilled
		patch.ClosureCause = &cause
		return r.ledger.Update(ctx, o.InternalID, patch)

	case exchange.DetailCancelled:
		o.State = models.StateClosed
		o.Closed = true
		o.Cancelled = true
		cause := models.ClosureExternalCancel
		return r.ledger.Update(ctx, o.InternalID, ledger.Patch{
			State:        statePtr(models.StateClosed),
			Closed:       boolPtr(true),
			Cancelled:    boolPtr(true),
			ClosureCause: &cause,
		})

	case exchange.DetailPartFilled:
		o.State = models.StatePartial
		return r.ledger.Update(ctx, o.InternalID, ledger.Patch{
			State:       statePtr(models.StatePartial),
			BaseFilled:  &detail.FilledBase,
			QuoteFilled: &detail.FilledQuote,
			MissedObs:   intPtr(0),
		})

	case exchange.DetailUnknown:
		return r.handleUnknown(ctx, o)

	case exchange.DetailNew:
		// A resting, unfilled order is still resting: clear any prior
		// unknown-observation strike so a later unknown starts counting
		// from zero rather than closing on its first consecutive miss.
		if o.MissedObservations == 0 {
			return nil
		}
		o.MissedObservations = 0
		return r.ledger.Update(ctx, o.InternalID, ledger.Patch{MissedObs: intPtr(0)})

	default:
		return nil
	}
}

// handleUnknown implements the two-strike escape policy: first
// occurrence marks "missing once" and leaves the order open; the
// second consecutive occurrence closes it as externally cancelled.
func (r *Reconciler) handleUnknown(ctx context.Context, o *models.Order) error {
	if o.MissedObservations < 1 {
		next := o.MissedObservations + 1
		o.MissedObservations = next
		return r.ledger.Update(ctx, o.InternalID, ledger.Patch{MissedObs: &next})
	}

	o.State = models.StateClosed
	o.Closed = true
	o.Cancelled = true
	cause := models.ClosureExternalCancel
	metrics.RecordReconcileUnknown()
	return r.ledger.Update(ctx, o.InternalID, ledger.Patch{
		State:        statePtr(models.StateClosed),
		Closed:       boolPtr(true),
		Cancelled:    boolPtr(true),
		ClosureCause: &cause,
	})
}

func statePtr(s models.State) *models.State { return &s }
func boolPtr(b bool) *bool                  { return &b }
func intPtr(i int) *int                     { return &i }
