// Package command implements the verb-dispatch table and confirmation
// state machine for the operator command surface (spec §6 and §9's
// "{Idle → Pending(cmd, deadline) → Idle}" design note). The
// text-protocol tokenizer itself stays an external collaborator per
// spec.md §1; this package receives already-tokenized Commands.
// Grounded on the request/response DTO and sentinel-error-to-status
// mapping pattern in
// internal/api/handlers/pair_handler.go, retargeted from HTTP status
// codes to the structured Result spec.md §9 calls for in place of
// string-constructed messages.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dome/adamant-tradebot/internal/apierrors"
	"github.com/dome/adamant-tradebot/internal/collector"
	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/ledger"
	"github.com/dome/adamant-tradebot/internal/models"
	"github.com/dome/adamant-tradebot/internal/pricemaker"
	"github.com/dome/adamant-tradebot/internal/tradeparams"
	"github.com/dome/adamant-tradebot/pkg/utils"
)

// confirmTimeout is the "10-minute timeout" spec.md §6/§9 specifies
// for a pending confirmation.
const confirmTimeout = 10 * time.Minute

// Command is one already-tokenized operator instruction: first token
// is the verb, the rest are positional/keyed arguments, matching
// spec.md §6's "whitespace-delimited, first token is the verb."
type Command struct {
	Verb string
	Args []string
	Pair string
	Raw  string
}

// inlineConfirmed reports whether Raw carries the "-y" marker
// anywhere in the token stream, per SPEC_FULL.md §9.1: the inline
// marker self-confirms without ever creating or consulting a Pending
// confirmation.
func (c Command) inlineConfirmed() bool {
	for _, a := range c.Args {
		if a == "-y" {
			return true
		}
	}
	return strings.Contains(c.Raw, "-y")
}

// Result is the structured outcome of dispatching one Command: the
// notify flag and type are machine-readable, and UserMessage is the
// operator-facing text, rendered by the verb handler itself.
type Result struct {
	Notify       bool
	UserMessage  string
	NotifyType   string
	Confirmation *Command // non-nil when this Result is itself a confirmation prompt
}

// PriceSource is read by the informational "rates" verb.
type PriceSource interface {
	GetRates(ctx context.Context, pair string) (exchange.RateInfo, error)
}

// BalanceSource is read by the informational "balances" verb.
type BalanceSource interface {
	All() []exchange.BalanceEntry
}

// confirmState is the small machine spec.md §9 names:
// {Idle → Pending(cmd, deadline) → Idle}.
type confirmState struct {
	mu      sync.Mutex
	pending *Command
	expires time.Time
}

func (s *confirmState) set(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &cmd
	s.expires = time.Now().Add(confirmTimeout)
}

func (s *confirmState) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// take returns the pending command and clears it, or false if there
// is none or it has expired. Expiry also clears the slot (spec.md §6:
// "otherwise the prompt expires").
func (s *confirmState) take() (Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Command{}, false
	}
	if time.Now().After(s.expires) {
		s.pending = nil
		return Command{}, false
	}
	cmd := *s.pending
	s.pending = nil
	return cmd, true
}

// Dispatcher holds every collaborator a command handler needs: the
// mutable trade-parameters store, the ledger, the collector, the
// price maker, and accessors for the informational verbs.
type Dispatcher struct {
	params    *tradeparams.Store
	ledger    *ledger.Ledger
	collector *collector.Collector
	maker     *pricemaker.Maker
	adapter   exchange.Adapter
	balances  BalanceSource
	pair      string
	log       *zap.SugaredLogger

	confirm confirmState
}

// New builds a Dispatcher for pair.
func New(
	params *tradeparams.Store,
	l *ledger.Ledger,
	col *collector.Collector,
	maker *pricemaker.Maker,
	adapter exchange.Adapter,
	balances BalanceSource,
	pair string,
	log *zap.SugaredLogger,
) *Dispatcher {
	return &Dispatcher{
		params: params, ledger: l, collector: col, maker: maker,
		adapter: adapter, balances: balances, pair: pair, log: log,
	}
}

// Dispatch routes cmd to its verb handler, applying the confirmation
// gate first when the command needs one.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) Result {
	if cmd.Pair == "" {
		cmd.Pair = d.pair
	}

	if cmd.Verb == "y" {
		return d.confirmPrevious(ctx)
	}

	needsConfirm, estimate := d.needsConfirmation(cmd)
	if needsConfirm && !cmd.inlineConfirmed() {
		d.confirm.set(cmd)
		return Result{
			Notify:       true,
			NotifyType:   "confirm",
			UserMessage:  fmt.Sprintf("this %s command is estimated at %s USD and requires confirmation; reply y within 10 minutes", cmd.Verb, estimate),
			Confirmation: &cmd,
		}
	}

	return d.run(ctx, cmd)
}

func (d *Dispatcher) confirmPrevious(ctx context.Context) Result {
	cmd, ok := d.confirm.take()
	if !ok {
		return Result{UserMessage: "nothing pending confirmation"}
	}
	return d.run(ctx, cmd)
}

// needsConfirmation reports whether cmd meets spec.md §6's "estimated
// USD notional meets amount_to_confirm_usd, or whose effect is
// destructive" test. Destructive verbs always confirm; buy/sell/fill
// confirm only once their estimated notional crosses the threshold.
func (d *Dispatcher) needsConfirmation(cmd Command) (bool, decimal.Decimal) {
	params := d.params.Snapshot()
	switch cmd.Verb {
	case "make":
		return true, decimal.Zero
	case "buy", "sell", "fill":
		est := d.estimateNotional(cmd)
		return est.GreaterThanOrEqual(params.AmountToConfirmUSD), est
	case "clear":
		for _, a := range cmd.Args {
			if a == "force" {
				return true, decimal.Zero
			}
		}
		return false, decimal.Zero
	default:
		return false, decimal.Zero
	}
}

// estimateNotional is a best-effort USD estimate used only to decide
// whether a confirmation prompt is owed; it reads the quote= argument
// directly rather than requiring a priced quote. A command sized only
// by amount= (base units) estimates as zero.
func (d *Dispatcher) estimateNotional(cmd Command) decimal.Decimal {
	for _, a := range cmd.Args {
		if v, ok := strings.CutPrefix(a, "quote="); ok {
			if n, err := decimal.NewFromString(v); err == nil {
				return n
			}
		}
	}
	return decimal.Zero
}

func (d *Dispatcher) run(ctx context.Context, cmd Command) Result {
	switch cmd.Verb {
	case "start":
		return d.handleStart(ctx, cmd)
	case "stop":
		return d.handleStop(ctx, cmd)
	case "enable":
		return d.handleEnable(ctx, cmd)
	case "disable":
		return d.handleDisable(ctx, cmd)
	case "amount":
		return d.handleAmount(ctx, cmd)
	case "interval":
		return d.handleInterval(ctx, cmd)
	case "buypercent":
		return d.handleBuyPercent(ctx, cmd)
	case "clear":
		return d.handleClear(ctx, cmd)
	case "fill":
		return d.handleFill(ctx, cmd)
	case "buy", "sell":
		return d.handlePlace(ctx, cmd)
	case "make":
		return d.handleMake(ctx, cmd)
	case "rates":
		return d.handleRates(ctx, cmd)
	case "stats":
		return d.handleStats(ctx, cmd)
	case "orders":
		return d.handleOrders(ctx, cmd)
	case "balances":
		return d.handleBalances(ctx, cmd)
	case "params":
		return d.handleParams(ctx, cmd)
	default:
		return Result{UserMessage: fmt.Sprintf("unrecognized command: %s", cmd.Verb)}
	}
}

func (d *Dispatcher) handleStart(ctx context.Context, cmd Command) Result {
	policy := models.PolicyOptimal
	if len(cmd.Args) > 1 {
		p := models.MmPolicy(cmd.Args[1])
		if p != models.PolicyOptimal && p != models.PolicySpread && p != models.PolicyDepth {
			return Result{UserMessage: validationMsg("start", "start mm [optimal|spread|depth]", "unknown policy "+cmd.Args[1])}
		}
		policy = p
	}
	if _, err := d.params.Mutate(ctx, func(p *models.TradeParams) {
		p.Active = true
		p.Policy = policy
	}); err != nil {
		return Result{UserMessage: "failed to start: " + err.Error()}
	}
	return Result{Notify: true, NotifyType: "info", UserMessage: fmt.Sprintf("started, policy=%s", policy)}
}

func (d *Dispatcher) handleStop(ctx context.Context, cmd Command) Result {
	if _, err := d.params.Mutate(ctx, func(p *models.TradeParams) { p.Active = false }); err != nil {
		return Result{UserMessage: "failed to stop: " + err.Error()}
	}
	return Result{Notify: true, NotifyType: "info", UserMessage: "stopped (live orders left resting)"}
}

func (d *Dispatcher) handleEnable(ctx context.Context, cmd Command) Result {
	if len(cmd.Args) == 0 {
		return Result{UserMessage: validationMsg("enable", "enable ob|liq|pw ...", "missing subsystem")}
	}
	switch cmd.Args[0] {
	case "ob":
		count, height := 10, 10
		if len(cmd.Args) > 1 {
			if n, err := strconv.Atoi(cmd.Args[1]); err == nil {
				count = n
			}
		}
		if len(cmd.Args) > 2 {
			pct := strings.TrimSuffix(cmd.Args[2], "%")
			if n, err := strconv.Atoi(pct); err == nil {
				height = n
			}
		}
		if _, err := d.params.Mutate(ctx, func(p *models.TradeParams) {
			p.ObActive = true
			p.OrderBookOrdersCount = count
			p.OrderBookHeight = height
		}); err != nil {
			return Result{UserMessage: "failed: " + err.Error()}
		}
		return Result{Notify: true, NotifyType: "info", UserMessage: "order-book builder enabled"}

	case "liq":
		if len(cmd.Args) < 5 {
			return Result{UserMessage: validationMsg("enable", "enable liq <spread%> <a1> <c1> <a2> <c2> [trend]", "missing arguments")}
		}
		spread, err1 := decimal.NewFromString(strings.TrimSuffix(cmd.Args[1], "%"))
		sellAmount, err2 := decimal.NewFromString(cmd.Args[2])
		buyQuote, err3 := decimal.NewFromString(cmd.Args[4])
		if err1 != nil || err2 != nil || err3 != nil {
			return Result{UserMessage: validationMsg("enable", "enable liq <spread%> <a1> <c1> <a2> <c2> [trend]", "non-numeric argument")}
		}
		trend := models.TrendMiddle
		if len(cmd.Args) > 5 {
			trend = models.Trend(cmd.Args[5])
		}
		if _, err := d.params.Mutate(ctx, func(p *models.TradeParams) {
			p.LiqActive = true
			p.LiquiditySpreadPercent = spread
			p.LiquiditySellAmount = sellAmount
			p.LiquidityBuyQuoteAmount = buyQuote
			p.LiquidityTrend = trend
		}); err != nil {
			return Result{UserMessage: "failed: " + err.Error()}
		}
		return Result{Notify: true, NotifyType: "info", UserMessage: "liquidity provider enabled, reseeding"}

	case "pw":
		if len(cmd.Args) < 2 {
			return Result{UserMessage: validationMsg("enable", "enable pw <range|value%> [src] [policy] [action]", "missing range")}
		}
		if _, err := d.params.Mutate(ctx, func(p *models.TradeParams) {
			p.PwActive = true
			if lo, hi, ok := parseRange(cmd.Args[1]); ok {
				p.PwSource = models.PwSourceNumeric
				p.PwRangeLow, p.PwRangeHigh = lo, hi
			} else if pct, err := decimal.NewFromString(strings.TrimSuffix(cmd.Args[1], "%")); err == nil {
				p.PwDeviationPct = pct
			}
			if len(cmd.Args) > 2 {
				p.PwPolicy = models.PwPolicy(cmd.Args[2])
			}
			if len(cmd.Args) > 3 {
				p.PwAction = models.PwAction(cmd.Args[3])
			}
		}); err != nil {
			return Result{UserMessage: "failed: " + err.Error()}
		}
		return Result{Notify: true, NotifyType: "info", UserMessage: "price watcher enabled"}

	default:
		return Result{UserMessage: validationMsg("enable", "enable ob|liq|pw ...", "unknown subsystem "+cmd.Args[0])}
	}
}

func (d *Dispatcher) handleDisable(ctx context.Context, cmd Command) Result {
	if len(cmd.Args) == 0 {
		return Result{UserMessage: validationMsg("disable", "disable ob|liq|pw", "missing subsystem")}
	}
	var apply func(*models.TradeParams)
	switch cmd.Args[0] {
	case "ob":
		apply = func(p *models.TradeParams) { p.ObActive = false }
	case "liq":
		apply = func(p *models.TradeParams) { p.LiqActive = false }
	case "pw":
		apply = func(p *models.TradeParams) { p.PwActive = false }
	default:
		return Result{UserMessage: validationMsg("disable", "disable ob|liq|pw", "unknown subsystem "+cmd.Args[0])}
	}
	if _, err := d.params.Mutate(ctx, apply); err != nil {
		return Result{UserMessage: "failed: " + err.Error()}
	}
	return Result{Notify: true, NotifyType: "info", UserMessage: cmd.Args[0] + " disabled"}
}

func (d *Dispatcher) handleAmount(ctx context.Context, cmd Command) Result {
	if len(cmd.Args) == 0 {
		return Result{UserMessage: validationMsg("amount", "amount min-max", "missing range")}
	}
	lo, hi, ok := parseRange(cmd.Args[0])
	if !ok {
		return Result{UserMessage: validationMsg("amount", "amount min-max", "invalid range "+cmd.Args[0])}
	}
	if _, err := d.params.Mutate(ctx, func(p *models.TradeParams) {
		p.AmountMin, p.AmountMax = lo, hi
	}); err != nil {
		return Result{UserMessage: "failed: " + err.Error()}
	}
	return Result{Notify: true, NotifyType: "info", UserMessage: fmt.Sprintf("amount range set to %s-%s", lo, hi)}
}

func (d *Dispatcher) handleInterval(ctx context.Context, cmd Command) Result {
	if len(cmd.Args) == 0 {
		return Result{UserMessage: validationMsg("interval", "interval min-max sec|min|hour", "missing range")}
	}
	lo, hi, ok := parseRange(cmd.Args[0])
	if !ok {
		return Result{UserMessage: validationMsg("interval", "interval min-max sec|min|hour", "invalid range "+cmd.Args[0])}
	}
	unit := time.Second
	if len(cmd.Args) > 1 {
		switch cmd.Args[1] {
		case "min":
			unit = time.Minute
		case "hour":
			unit = time.Hour
		}
	}
	minD := time.Duration(lo.InexactFloat64() * float64(unit))
	maxD := time.Duration(hi.InexactFloat64() * float64(unit))
	if _, err := d.params.Mutate(ctx, func(p *models.TradeParams) {
		p.IntervalMin, p.IntervalMax = minD, maxD
	}); err != nil {
		return Result{UserMessage: "failed: " + err.Error()}
	}
	return Result{Notify: true, NotifyType: "info", UserMessage: fmt.Sprintf("interval set to %s-%s", minD, maxD)}
}

func (d *Dispatcher) handleBuyPercent(ctx context.Context, cmd Command) Result {
	if len(cmd.Args) == 0 {
		return Result{UserMessage: validationMsg("buypercent", "buypercent N", "missing value")}
	}
	n, err := decimal.NewFromString(cmd.Args[0])
	if err != nil || utils.ValidatePercentage(n.InexactFloat64()) != nil {
		return Result{UserMessage: validationMsg("buypercent", "buypercent N", "N must be in [0,100]")}
	}
	if _, err := d.params.Mutate(ctx, func(p *models.TradeParams) { p.BuyPercent = n }); err != nil {
		return Result{UserMessage: "failed: " + err.Error()}
	}
	return Result{Notify: true, NotifyType: "info", UserMessage: fmt.Sprintf("buy percent set to %s", n)}
}

func (d *Dispatcher) handleClear(ctx context.Context, cmd Command) Result {
	sel := collector.Selector{Pair: cmd.Pair}
	args := cmd.Args
	if len(args) == 0 {
		return Result{UserMessage: validationMsg("clear", "clear [pair] <purpose|all|unk> [buy|sell] [>P|<P] [force]", "missing purpose")}
	}
	switch args[0] {
	case "all":
		// nil Purposes + Unknown=false selects across all purposes
		// (collector.purposesOrAny treats an empty purpose as "any").
	case "unk":
		sel.Unknown = true
	default:
		sel.Purposes = []models.Purpose{models.Purpose(args[0])}
	}
	for _, a := range args[1:] {
		switch {
		case a == "buy":
			s := models.SideBuy
			sel.Side = &s
		case a == "sell":
			s := models.SideSell
			sel.Side = &s
		case a == "force":
			sel.Force = true
		case strings.HasPrefix(a, ">"):
			if p, err := decimal.NewFromString(strings.TrimPrefix(a, ">")); err == nil {
				sel.Price = &collector.PriceFilter{Op: ">", Price: p}
			}
		case strings.HasPrefix(a, "<"):
			if p, err := decimal.NewFromString(strings.TrimPrefix(a, "<")); err == nil {
				sel.Price = &collector.PriceFilter{Op: "<", Price: p}
			}
		}
	}

	res := d.collector.Run(ctx, sel, "userCommand")
	return Result{Notify: true, NotifyType: "info", UserMessage: res.LogMessage}
}

func (d *Dispatcher) handleFill(ctx context.Context, cmd Command) Result {
	if len(cmd.Args) < 1 {
		return Result{UserMessage: validationMsg("fill", "fill [pair] buy|sell quote=X|amount=X low=L high=H count=N", "missing side")}
	}
	side := models.SideBuy
	switch cmd.Args[0] {
	case "sell":
		side = models.SideSell
	case "buy":
	default:
		return Result{UserMessage: validationMsg("fill", "fill [pair] buy|sell ...", "unknown side "+cmd.Args[0])}
	}

	kv := parseKV(cmd.Args[1:])
	low, errLow := decimal.NewFromString(kv["low"])
	high, errHigh := decimal.NewFromString(kv["high"])
	count, errCount := strconv.Atoi(kv["count"])
	if errLow != nil || errHigh != nil || errCount != nil || count <= 0 {
		return Result{UserMessage: validationMsg("fill", "fill [pair] buy|sell quote=X|amount=X low=L high=H count=N", "missing or invalid low/high/count")}
	}

	var perOrder decimal.Decimal
	isQuote := kv["quote"] != ""
	if isQuote {
		total, err := decimal.NewFromString(kv["quote"])
		if err != nil {
			return Result{UserMessage: validationMsg("fill", "fill ... quote=X", "invalid quote amount")}
		}
		perOrder = total.Div(decimal.NewFromInt(int64(count)))
	} else {
		total, err := decimal.NewFromString(kv["amount"])
		if err != nil {
			return Result{UserMessage: validationMsg("fill", "fill ... amount=X", "invalid amount")}
		}
		perOrder = total.Div(decimal.NewFromInt(int64(count)))
	}

	if rej := d.checkBalance(side, perOrder, isQuote, count); rej != "" {
		return Result{UserMessage: rej}
	}

	step := high.Sub(low)
	if count > 1 {
		step = step.Div(decimal.NewFromInt(int64(count - 1)))
	}
	placed := 0
	for i := 0; i < count; i++ {
		price := low.Add(step.Mul(decimal.NewFromInt(int64(i))))
		amount := perOrder
		if isQuote {
			if price.Sign() <= 0 {
				continue
			}
			amount = perOrder.Div(price)
		}
		if d.placeLedgered(ctx, cmd.Pair, side, price, amount) {
			placed++
		}
	}
	return Result{Notify: true, NotifyType: "info", UserMessage: fmt.Sprintf("placed %d/%d fill orders", placed, count)}
}

func (d *Dispatcher) handlePlace(ctx context.Context, cmd Command) Result {
	side := models.SideBuy
	if cmd.Verb == "sell" {
		side = models.SideSell
	}
	kv := parseKV(cmd.Args)

	var amount decimal.Decimal
	var err error
	isQuote := kv["quote"] != ""
	if isQuote {
		amount, err = decimal.NewFromString(kv["quote"])
	} else {
		amount, err = decimal.NewFromString(kv["amount"])
	}
	if err != nil {
		return Result{UserMessage: validationMsg(cmd.Verb, cmd.Verb+" [pair] amount=X|quote=X [price=P|market]", "missing or invalid amount")}
	}

	isLimit := true
	var price decimal.Decimal
	if kv["price"] == "market" || contains(cmd.Args, "market") {
		isLimit = false
	} else if kv["price"] != "" {
		price, err = decimal.NewFromString(kv["price"])
		if err != nil {
			return Result{UserMessage: validationMsg(cmd.Verb, cmd.Verb+" ... price=P", "invalid price")}
		}
	} else {
		return Result{UserMessage: validationMsg(cmd.Verb, cmd.Verb+" ... price=P|market", "missing price")}
	}

	baseAmount := amount
	if isQuote && price.Sign() > 0 {
		baseAmount = amount.Div(price)
	}
	if rej := d.checkBalance(side, amount, isQuote, 1); rej != "" {
		return Result{UserMessage: rej}
	}

	req := exchange.PlaceRequest{Pair: cmd.Pair, Side: side, IsLimit: isLimit, Price: price, BaseAmount: baseAmount}
	exchangeID, err := d.adapter.PlaceOrder(ctx, req)
	if err != nil {
		if rej, ok := asRejected(err); ok {
			return Result{UserMessage: "rejected: " + rej.Reason}
		}
		return Result{UserMessage: "placement failed: " + err.Error()}
	}

	order := &models.Order{
		ExchangeOrderID: exchangeID, Pair: cmd.Pair, Side: side,
		Purpose: models.PurposeManual, State: models.StateOpen,
		Price: price, BaseAmount: baseAmount, BaseRemaining: baseAmount,
	}
	if isLimit {
		order.Type = models.OrderTypeLimit
	} else {
		order.Type = models.OrderTypeMarket
	}
	if err := d.ledger.Insert(ctx, order); err != nil {
		d.log.Errorw("manual order ledger insert failed after placement", "exchange_order_id", exchangeID, "err", err)
	}
	return Result{Notify: true, NotifyType: "info", UserMessage: fmt.Sprintf("placed %s order %s", side, exchangeID)}
}

func (d *Dispatcher) handleMake(ctx context.Context, cmd Command) Result {
	if len(cmd.Args) < 2 {
		return Result{UserMessage: validationMsg("make", "make price T c2 now", "missing target")}
	}
	target, err := decimal.NewFromString(cmd.Args[1])
	if err != nil {
		return Result{UserMessage: validationMsg("make", "make price T c2 now", "invalid target price")}
	}
	rep := d.maker.Push(ctx, target)
	if !rep.Success {
		return Result{UserMessage: "price maker failed: " + rep.Reason}
	}
	return Result{
		Notify:     true,
		NotifyType: "info",
		UserMessage: fmt.Sprintf("moved %s from %s toward %s, placed %s %s @ %s",
			cmd.Pair, rep.BeforeRate, target, rep.Side, rep.Amount, rep.Price),
	}
}

func (d *Dispatcher) handleRates(ctx context.Context, cmd Command) Result {
	rates, err := d.adapter.GetRates(ctx, cmd.Pair)
	if err != nil {
		return Result{UserMessage: "failed to fetch rates: " + err.Error()}
	}
	return Result{UserMessage: fmt.Sprintf("%s bid=%s ask=%s last=%s", cmd.Pair, rates.Bid, rates.Ask, rates.Last)}
}

func (d *Dispatcher) handleStats(ctx context.Context, cmd Command) Result {
	window := models.WindowDay
	if len(cmd.Args) > 0 {
		window = models.StatsWindow(cmd.Args[0])
	}
	stats, err := d.ledger.StatsByPurpose(ctx, cmd.Pair, nil, window)
	if err != nil {
		return Result{UserMessage: "failed to load stats: " + err.Error()}
	}
	var b strings.Builder
	for _, s := range stats {
		fmt.Fprintf(&b, "%s: placed=%d filled=%d cancelled=%d volBase=%s\n",
			s.Purpose, s.OrdersPlaced, s.OrdersFilled, s.OrdersCancelled, s.VolumeBase)
	}
	return Result{UserMessage: b.String()}
}

func (d *Dispatcher) handleOrders(ctx context.Context, cmd Command) Result {
	open, err := d.ledger.FindOpen(ctx, "", cmd.Pair)
	if err != nil {
		return Result{UserMessage: "failed to load orders: " + err.Error()}
	}
	return Result{UserMessage: fmt.Sprintf("%d open orders for %s", len(open), cmd.Pair)}
}

func (d *Dispatcher) handleBalances(ctx context.Context, cmd Command) Result {
	if d.balances == nil {
		return Result{UserMessage: "balances unavailable"}
	}
	var b strings.Builder
	for _, e := range d.balances.All() {
		fmt.Fprintf(&b, "%s: free=%s locked=%s\n", e.Coin, e.Free, e.Locked)
	}
	return Result{UserMessage: b.String()}
}

func (d *Dispatcher) handleParams(ctx context.Context, cmd Command) Result {
	p := d.params.Snapshot()
	return Result{UserMessage: fmt.Sprintf(
		"active=%t policy=%s ob=%t liq=%t pw=%t amount=%s-%s buyPercent=%s",
		p.Active, p.Policy, p.ObActive, p.LiqActive, p.PwActive, p.AmountMin, p.AmountMax, p.BuyPercent,
	)}
}

func (d *Dispatcher) placeLedgered(ctx context.Context, pair string, side models.Side, price, amount decimal.Decimal) bool {
	req := exchange.PlaceRequest{Pair: pair, Side: side, IsLimit: true, Price: price, BaseAmount: amount}
	exchangeID, err := d.adapter.PlaceOrder(ctx, req)
	if err != nil {
		d.log.Warnw("fill command place failed", "side", side, "price", price, "err", err)
		return false
	}
	order := &models.Order{
		ExchangeOrderID: exchangeID, Pair: pair, Side: side, Type: models.OrderTypeLimit,
		Purpose: models.PurposeManual, State: models.StateOpen,
		Price: price, BaseAmount: amount, BaseRemaining: amount,
	}
	if err := d.ledger.Insert(ctx, order); err != nil {
		d.log.Errorw("fill command ledger insert failed after placement", "exchange_order_id", exchangeID, "err", err)
	}
	return true
}

// checkBalance returns a non-empty rejection message when the free
// balance cannot cover the requested notional (end-to-end scenario 5:
// "/fill ... rejects with 'Not enough quote'").
func (d *Dispatcher) checkBalance(side models.Side, perOrderOrTotal decimal.Decimal, isQuote bool, count int) string {
	if d.balances == nil {
		return ""
	}
	market, needed := "base", perOrderOrTotal.Mul(decimal.NewFromInt(int64(count)))
	if side == models.SideBuy || isQuote {
		market = "quote"
	}
	for _, e := range d.balances.All() {
		if strings.EqualFold(e.Coin, market) {
			if e.Free.LessThan(needed) {
				return fmt.Sprintf("not enough %s: need %s, have %s", market, needed, e.Free)
			}
			return ""
		}
	}
	return fmt.Sprintf("not enough %s: no balance entry found", market)
}

func asRejected(err error) (*apierrors.RejectedError, bool) {
	var rej *apierrors.RejectedError
	ok := errors.As(err, &rej)
	return rej, ok
}

func validationMsg(verb, usage, cause string) string {
	return (&apierrors.ValidationError{Verb: verb, Usage: usage, Cause: cause}).Error()
}

func parseRange(s string) (decimal.Decimal, decimal.Decimal, bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return decimal.Zero, decimal.Zero, false
	}
	lo, err1 := decimal.NewFromString(parts[0])
	hi, err2 := decimal.NewFromString(parts[1])
	if err1 != nil || err2 != nil {
		return decimal.Zero, decimal.Zero, false
	}
	return lo, hi, true
}

func parseKV(args []string) map[string]string {
	kv := make(map[string]string, len(args))
	for _, a := range args {
		if k, v, ok := strings.Cut(a, "="); ok {
			kv[k] = v
		}
	}
	return kv
}

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
