// Package apierrors defines the error taxonomy every component in
// this agent classifies failures into, grounded on
// internal/exchange.ExchangeError's Exchange/Code/Message/Original
// shape but widened to cover more than exchange-adapter failures.
package apierrors

import "fmt"

// TransientAPIError is a network error, rate-limit rejection, or 5xx
// response. Recovered automatically: the caller retries next tick and
// never surfaces it to the operator unless it repeats past an hourly
// threshold.
type TransientAPIError struct {
	Exchange string
	Op       string
	Original error
}

func (e *TransientAPIError) Error() string {
	return fmt.Sprintf("%s: transient error during %s: %v", e.Exchange, e.Op, e.Original)
}

func (e *TransientAPIError) Unwrap() error { return e.Original }

// Temporary marks this as retryable for pkg/retry's RetryIfTemporary.
func (e *TransientAPIError) Temporary() bool { return true }

// RejectedError is insufficient balance, min-amount, precision, or
// self-trade prevention. Recovered locally by skipping the placement;
// surfaces to the operator only when it affects a manual command.
type RejectedError struct {
	Exchange string
	Reason   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: rejected: %s", e.Exchange, e.Reason)
}

// Temporary is false: a RejectedError must never be retried as-is.
func (e *RejectedError) Temporary() bool { return false }

// UnknownOrderError means the order id is unrecognized by the
// exchange. Handled by the reconciler's two-strike rule, never
// retried by the generic retry helper.
type UnknownOrderError struct {
	Exchange string
	OrderID  string
}

func (e *UnknownOrderError) Error() string {
	return fmt.Sprintf("%s: order %s unknown to exchange", e.Exchange, e.OrderID)
}

func (e *UnknownOrderError) Temporary() bool { return false }

// ValidationError is malformed operator input. Returned synchronously
// to the operator with a usage example.
type ValidationError struct {
	Verb  string
	Usage string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s command: %s (usage: %s)", e.Verb, e.Cause, e.Usage)
}

// PriceWatcherUnavailable means the watcher is enabled but not
// actual. Under the "smart" policy this is tolerated within a grace
// window; under "strict" it blocks placements outright.
type PriceWatcherUnavailable struct {
	Pair   string
	Policy string
}

func (e *PriceWatcherUnavailable) Error() string {
	return fmt.Sprintf("price watcher for %s unavailable under %s policy", e.Pair, e.Policy)
}

// FatalError is unrecoverable misconfiguration — e.g. the traded pair
// is not listed by the exchange. Logged, disables activity, notifies
// the operator.
type FatalError struct {
	Reason   string
	Original error
}

func (e *FatalError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Original)
	}
	return fmt.Sprintf("fatal: %s", e.Reason)
}

func (e *FatalError) Unwrap() error { return e.Original }
