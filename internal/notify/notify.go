// Package notify realizes the notification-sink boundary spec.md §1
// leaves as an external collaborator: a concrete Sink broadcasting
// structured events over the WebSocket hub (SPEC_FULL.md §15).
// Grounded on internal/websocket/{hub.go,messages.go}.
package notify

import (
	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/models"
	"github.com/dome/adamant-tradebot/internal/websocket"
)

// Sink is every component's view of the notification boundary: warn
// (obbuilder's insufficient-balance throttle), order and price-watcher
// state changes.
type Sink interface {
	Warn(source, message string)
	Info(source, message string)
	OrderUpdated(order *models.Order)
	BalanceUpdated(entry exchange.BalanceEntry)
	StatsUpdated(stats []models.PurposeStat)
	PriceWatcherUpdated(state models.PriceWatcherState)
}

// Broadcaster is satisfied by *websocket.Hub.
type Broadcaster interface {
	Broadcast(message interface{})
}

// WebSocketSink implements Sink on top of a Broadcaster, translating
// each domain event into the corresponding messages.go wire type.
type WebSocketSink struct {
	hub Broadcaster
}

// New builds a WebSocketSink over hub.
func New(hub Broadcaster) *WebSocketSink {
	return &WebSocketSink{hub: hub}
}

func (s *WebSocketSink) Warn(source, message string) {
	s.hub.Broadcast(websocket.NewNotificationMessage(websocket.SeverityWarn, source, message))
}

func (s *WebSocketSink) Info(source, message string) {
	s.hub.Broadcast(websocket.NewNotificationMessage(websocket.SeverityInfo, source, message))
}

func (s *WebSocketSink) Error(source, message string) {
	s.hub.Broadcast(websocket.NewNotificationMessage(websocket.SeverityError, source, message))
}

func (s *WebSocketSink) OrderUpdated(order *models.Order) {
	s.hub.Broadcast(websocket.NewOrderUpdateMessage(order))
}

func (s *WebSocketSink) BalanceUpdated(entry exchange.BalanceEntry) {
	s.hub.Broadcast(websocket.NewBalanceUpdateMessage(entry))
}

func (s *WebSocketSink) StatsUpdated(stats []models.PurposeStat) {
	s.hub.Broadcast(websocket.NewStatsUpdateMessage(stats))
}

func (s *WebSocketSink) PriceWatcherUpdated(state models.PriceWatcherState) {
	s.hub.Broadcast(websocket.NewPriceWatcherUpdateMessage(state))
}

// Publish maps a command.Result.NotifyType / NotificationSeverity
// string onto the corresponding Sink call, for callers that only have
// the string form: "warn" and "error" go to Warn and Error, anything
// else to Info.
func (s *WebSocketSink) Publish(source, notifyType, message string) {
	switch notifyType {
	case "warn":
		s.Warn(source, message)
	case "error":
		s.Error(source, message)
	default:
		s.Info(source, message)
	}
}
