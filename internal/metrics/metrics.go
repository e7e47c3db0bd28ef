// Package metrics exposes the bot's Prometheus surface (SPEC_FULL.md
// §12). Grounded on _examples/svyatogor45-abitrage/internal/bot/metrics.go:
// same promauto/client_golang wiring, namespace/subsystem convention,
// and thin Record*/Update* helpers, retargeted from arbitrage-pair
// metrics onto the two scheduler-driven components (builder,
// liquidity) and the order lifecycle they drive.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============ Tick latency ============

// TickLatency measures one Tick() call's wall time per component.
var TickLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "tradebot",
		Subsystem: "scheduler",
		Name:      "tick_latency_ms",
		Help:      "Latency of a single component tick in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	},
	[]string{"component"}, // builder, liquidity (the scheduler's loop names)
)

// ============ Order lifecycle counters ============

// OrdersPlaced counts successful PlaceOrder calls by purpose.
var OrdersPlaced = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradebot",
		Subsystem: "orders",
		Name:      "placed_total",
		Help:      "Total number of orders placed, by purpose",
	},
	[]string{"purpose"}, // models.Purpose value: ob, liq
)

// OrdersRejected counts exchange-rejected placement attempts.
var OrdersRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradebot",
		Subsystem: "orders",
		Name:      "rejected_total",
		Help:      "Total number of order placements rejected by the exchange",
	},
	[]string{"purpose"},
)

// OrdersCancelled counts orders cancelled, by purpose and reason.
var OrdersCancelled = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradebot",
		Subsystem: "orders",
		Name:      "cancelled_total",
		Help:      "Total number of orders cancelled, by purpose and reason",
	},
	[]string{"purpose", "reason"}, // reason: the collector pass's reason, e.g. expired, outOfPwRange, resetLiqLimits
)

// ReconcileUnknown counts ledger rows the reconciler found with no
// matching exchange order (UnknownOrderError from apierrors).
var ReconcileUnknown = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradebot",
		Subsystem: "reconciler",
		Name:      "unknown_orders_total",
		Help:      "Total number of ledger rows reconciled as unknown to the exchange",
	},
)

// ============ Gauges ============

// OpenOrderGauge tracks the number of currently open ledger rows by
// purpose, set on every builder and liquidity tick before new
// placements.
var OpenOrderGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "tradebot",
		Subsystem: "orders",
		Name:      "open",
		Help:      "Current number of open orders, by purpose",
	},
	[]string{"purpose"},
)

// WebSocketClients tracks connected operator clients.
var WebSocketClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradebot",
		Subsystem: "websocket",
		Name:      "clients",
		Help:      "Current number of connected WebSocket clients",
	},
)

// ============ Helpers ============

// RecordTick observes a component's tick latency.
func RecordTick(component string, latencyMs float64) {
	TickLatency.WithLabelValues(component).Observe(latencyMs)
}

// RecordPlaced increments the placed counter for purpose.
func RecordPlaced(purpose string) {
	OrdersPlaced.WithLabelValues(purpose).Inc()
}

// RecordRejected increments the rejected counter for purpose.
func RecordRejected(purpose string) {
	OrdersRejected.WithLabelValues(purpose).Inc()
}

// RecordCancelled increments the cancelled counter for purpose/reason.
func RecordCancelled(purpose, reason string) {
	OrdersCancelled.WithLabelValues(purpose, reason).Inc()
}

// RecordReconcileUnknown increments the unknown-order counter.
func RecordReconcileUnknown() {
	ReconcileUnknown.Inc()
}

// SetOpenOrders sets the open-order gauge for purpose.
func SetOpenOrders(purpose string, count int) {
	OpenOrderGauge.WithLabelValues(purpose).Set(float64(count))
}

// SetWebSocketClients sets the connected-client gauge.
func SetWebSocketClients(count int) {
	WebSocketClients.Set(float64(count))
}
