// Package collector cancels ledger orders selectively — by purpose,
// side, price filter, or the special "unknown" mode — with force and
// grace-period semantics (spec §4.D).
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/ledger"
	"github.com/dome/adamant-tradebot/internal/metrics"
	"github.com/dome/adamant-tradebot/internal/models"
)

// PriceFilter narrows a selector to orders priced above or below a
// threshold; Op is ">" or "<". A zero-value PriceFilter (Op=="")
// matches every price.
type PriceFilter struct {
	Op    string
	Price decimal.Decimal
}

func (f PriceFilter) matches(price decimal.Decimal) bool {
	switch f.Op {
	case ">":
		return price.GreaterThan(f.Price)
	case "<":
		return price.LessThan(f.Price)
	default:
		return true
	}
}

// Band is a price-watcher band; OutOfBand selects orders priced
// strictly outside [Low, High].
type Band struct {
	Low, High decimal.Decimal
}

func (b Band) excludes(price decimal.Decimal) bool {
	return price.LessThan(b.Low) || price.GreaterThan(b.High)
}

// Selector describes which ledger orders a Run call targets.
// Purposes == nil with Unknown == true switches to the special
// "unk" mode: list exchange-live orders absent from the ledger and
// cancel those instead.
type Selector struct {
	Purposes    []models.Purpose
	Pair        string
	Side        *models.Side
	Price       *PriceFilter
	ExpiredOnly bool
	OutOfBand   *Band
	Force       bool
	Unknown     bool
	ClosureTag  models.ClosureCause
}

// Result is the structured outcome of a cancellation run, per the
// design note in spec.md §9 favoring machine-readable fields over
// formatted strings; a separate formatter renders operator text.
type Result struct {
	Attempted     int
	Cancelled     int
	Failed        int
	AlreadyClosed int
	LogMessage    string
}

// BalanceInvalidator is satisfied by *cache.BalanceCache. Cancelling a
// resting order frees the balance it held, so the cache must be
// refreshed eagerly rather than waiting out its TTL (spec §5).
type BalanceInvalidator interface {
	Invalidate()
}

// Collector cancels ledger rows through one exchange adapter.
type Collector struct {
	ledger   *ledger.Ledger
	adapter  exchange.Adapter
	balances BalanceInvalidator
	log      *zap.SugaredLogger
}

// New builds a Collector. balances may be nil, in which case no eager
// invalidation happens after a cancellation.
func New(l *ledger.Ledger, adapter exchange.Adapter, balances BalanceInvalidator, log *zap.SugaredLogger) *Collector {
	return &Collector{ledger: l, adapter: adapter, balances: balances, log: log}
}

// Run executes sel and returns the aggregate outcome. Individual
// per-order cancel failures are aggregated with multierr so one failed
// cancel doesn't abort the whole batch; the aggregated error is logged,
// never returned, matching spec §7's "component ticks never propagate
// errors upward."
func (c *Collector) Run(ctx context.Context, sel Selector, reason string) Result {
	if sel.Unknown {
		return c.runUnknown(ctx, sel, reason)
	}
	return c.runLedgerSelection(ctx, sel, reason)
}

func (c *Collector) runLedgerSelection(ctx context.Context, sel Selector, reason string) Result {
	var res Result
	var errs error

	for _, purpose := range purposesOrAny(sel.Purposes) {
		open, err := c.ledger.FindOpen(ctx, purpose, sel.Pair)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, o := range open {
			if !matchesSelector(o, sel) {
				continue
			}
			res.Attempted++
			c.cancelOne(ctx, o, sel.Force, reason, &res, &errs)
		}
	}

	if errs != nil {
		c.log.Warnw("collector run completed with errors", "reason", reason, "err", errs)
	}
	res.LogMessage = summarize(reason, res)
	return res
}

func (c *Collector) runUnknown(ctx context.Context, sel Selector, reason string) Result {
	var res Result
	var errs error

	live, err := c.adapter.GetOpenOrders(ctx, sel.Pair)
	if err != nil {
		c.log.Errorw("getOpenOrders failed during unknown sweep", "err", err)
		res.LogMessage = summarize(reason, res)
		return res
	}

	known := make(map[string]bool)
	open, err := c.ledger.FindOpen(ctx, "", sel.Pair)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	for _, o := range open {
		known[o.ExchangeOrderID] = true
	}

	for _, lo := range live {
		if known[lo.ID] {
			continue
		}
		res.Attempted++
		outcome, err := c.adapter.CancelOrder(ctx, lo.ID, lo.Side, sel.Pair)
		if err != nil {
			res.Failed++
			errs = multierr.Append(errs, err)
			continue
		}
		switch outcome {
		case exchange.CancelledOK:
			res.Cancelled++
			c.invalidateBalances()
		case exchange.CancelAlready:
			res.AlreadyClosed++
			c.invalidateBalances()
		default:
			res.Failed++
		}
	}

	if errs != nil {
		c.log.Warnw("unknown-order sweep completed with errors", "reason", reason, "err", errs)
	}
	res.LogMessage = summarize(reason, res)
	return res
}

func (c *Collector) cancelOne(ctx context.Context, o *models.Order, force bool, reason string, res *Result, errs *error) {
	outcome, err := c.adapter.CancelOrder(ctx, o.ExchangeOrderID, o.Side, o.Pair)
	if err != nil {
		if isTransient(err) && !force {
			// Left open; the next tick's reconcile-before-decide pass
			// retries the cancel.
			res.Failed++
			*errs = multierr.Append(*errs, err)
			return
		}

		if force {
			// Operator accepts the risk: mark locally closed even
			// though exchange state is uncertain.
			cause := closureCause(reason, o)
			_ = c.ledger.Update(ctx, o.InternalID, ledger.Patch{
				State:        statePtr(models.StateClosed),
				Closed:       boolPtr(true),
				Cancelled:    boolPtr(true),
				ClosureCause: &cause,
			})
			res.Cancelled++
			c.invalidateBalances()
			metrics.RecordCancelled(string(o.Purpose), reason)
			return
		}

		res.Failed++
		*errs = multierr.Append(*errs, err)
		return
	}

	switch outcome {
	case exchange.CancelledOK:
		cause := closureCause(reason, o)
		if uerr := c.ledger.Update(ctx, o.InternalID, ledger.Patch{
			State:        statePtr(models.StateClosed),
			Closed:       boolPtr(true),
			Cancelled:    boolPtr(true),
			ClosureCause: &cause,
		}); uerr != nil {
			*errs = multierr.Append(*errs, uerr)
			res.Failed++
			return
		}
		res.Cancelled++
		c.invalidateBalances()
		metrics.RecordCancelled(string(o.Purpose), reason)

	case exchange.CancelAlready:
		cause := closureCause(reason, o)
		if uerr := c.ledger.Update(ctx, o.InternalID, ledger.Patch{
			State:        statePtr(models.StateClosed),
			Closed:       boolPtr(true),
			ClosureCause: &cause,
		}); uerr != nil {
			*errs = multierr.Append(*errs, uerr)
		}
		res.AlreadyClosed++
		c.invalidateBalances()

	default:
		res.Failed++
	}
}

func (c *Collector) invalidateBalances() {
	if c.balances != nil {
		c.balances.Invalidate()
	}
}

func isTransient(err error) bool {
	type temporary interface{ Temporary() bool }
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}

func closureCause(reason string, o *models.Order) models.ClosureCause {
	switch reason {
	case "expired":
		return models.ClosureExpired
	case "outOfPwRange":
		return models.ClosureOutOfPwRange
	case "userCommand":
		return models.ClosureUserCommand
	default:
		return models.ClosureUserCommand
	}
}

func matchesSelector(o *models.Order, sel Selector) bool {
	if sel.Side != nil && o.Side != *sel.Side {
		return false
	}
	if sel.Price != nil && !sel.Price.matches(o.Price) {
		return false
	}
	if sel.ExpiredOnly && (o.ExpiresAt == nil || o.ExpiresAt.After(time.Now())) {
		return false
	}
	if sel.OutOfBand != nil && !sel.OutOfBand.excludes(o.Price) {
		return false
	}
	return true
}

func purposesOrAny(purposes []models.Purpose) []models.Purpose {
	if len(purposes) == 0 {
		return []models.Purpose{""}
	}
	return purposes
}

func summarize(reason string, res Result) string {
	return fmt.Sprintf("%s: attempted=%d cancelled=%d failed=%d alreadyClosed=%d",
		reason, res.Attempted, res.Cancelled, res.Failed, res.AlreadyClosed)
}

func statePtr(s models.State) *models.State { return &s }
func boolPtr(b bool) *bool                  { return &b }
