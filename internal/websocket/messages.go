package websocket

import (
	"time"

	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeOrderUpdate - изменение состояния ордера в ledger:
	// новое размещение, частичное/полное исполнение, отмена.
	MessageTypeOrderUpdate MessageType = "orderUpdate"

	// MessageTypeNotification - операторское уведомление (hourly-throttled
	// transient warning, rejected placement, fatal error, ...).
	MessageTypeNotification MessageType = "notification"

	// MessageTypeBalanceUpdate - обновление баланса по одной монете.
	MessageTypeBalanceUpdate MessageType = "balanceUpdate"

	// MessageTypeStatsUpdate - обновление агрегированной статистики по
	// purpose/pair/window.
	MessageTypeStatsUpdate MessageType = "statsUpdate"

	// MessageTypePriceWatcherUpdate - новая публикация состояния
	// price watcher (band, isActual, anomaly flag).
	MessageTypePriceWatcherUpdate MessageType = "priceWatcherUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// OrderUpdateMessage сообщает об изменении одной ledger-строки.
type OrderUpdateMessage struct {
	BaseMessage
	OrderID int64           `json:"order_id"`
	Data    *OrderUpdateData `json:"data"`
}

// OrderUpdateData - проекция models.Order для фронтенда: числа как
// строки (decimal.Decimal не умеет float64 без потери точности).
type OrderUpdateData struct {
	ExchangeOrderID string `json:"exchange_order_id"`
	Pair            string `json:"pair"`
	Side            string `json:"side"`
	Purpose         string `json:"purpose"`
	State           string `json:"state"`
	Price           string `json:"price"`
	BaseAmount      string `json:"base_amount"`
	BaseFilled      string `json:"base_filled"`
	BaseRemaining   string `json:"base_remaining"`
	ClosureCause    string `json:"closure_cause,omitempty"`
}

// NewOrderUpdateMessage projects order into an OrderUpdateMessage.
func NewOrderUpdateMessage(order *models.Order) *OrderUpdateMessage {
	return &OrderUpdateMessage{
		BaseMessage: BaseMessage{Type: MessageTypeOrderUpdate, Timestamp: time.Now()},
		OrderID:     order.InternalID,
		Data: &OrderUpdateData{
			ExchangeOrderID: order.ExchangeOrderID,
			Pair:            order.Pair,
			Side:            string(order.Side),
			Purpose:         string(order.Purpose),
			State:           string(order.State),
			Price:           order.Price.String(),
			BaseAmount:      order.BaseAmount.String(),
			BaseFilled:      order.BaseFilled.String(),
			BaseRemaining:   order.BaseRemaining.String(),
			ClosureCause:    string(order.ClosureCause),
		},
	}
}

// NotificationSeverity mirrors the levels a notification sink renders.
type NotificationSeverity string

const (
	SeverityInfo  NotificationSeverity = "info"
	SeverityWarn  NotificationSeverity = "warn"
	SeverityError NotificationSeverity = "error"
)

// NotificationMessage - сообщение о новом операторском уведомлении.
type NotificationMessage struct {
	BaseMessage
	Data *NotificationData `json:"data"`
}

// NotificationData - данные уведомления.
type NotificationData struct {
	Severity string `json:"severity"`
	Source   string `json:"source"` // component that raised it: obbuilder, collector, ...
	Message  string `json:"message"`
}

// NewNotificationMessage создает сообщение уведомления.
func NewNotificationMessage(severity NotificationSeverity, source, message string) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{Type: MessageTypeNotification, Timestamp: time.Now()},
		Data: &NotificationData{
			Severity: string(severity),
			Source:   source,
			Message:  message,
		},
	}
}

// BalanceUpdateMessage - сообщение об обновлении баланса одной монеты.
type BalanceUpdateMessage struct {
	BaseMessage
	Coin   string `json:"coin"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
	Total  string `json:"total"`
}

// NewBalanceUpdateMessage создает сообщение обновления баланса.
func NewBalanceUpdateMessage(entry exchange.BalanceEntry) *BalanceUpdateMessage {
	return &BalanceUpdateMessage{
		BaseMessage: BaseMessage{Type: MessageTypeBalanceUpdate, Timestamp: time.Now()},
		Coin:        entry.Coin,
		Free:        entry.Free.String(),
		Locked:      entry.Locked.String(),
		Total:       entry.Total.String(),
	}
}

// StatsUpdateMessage - сообщение об обновлении агрегированной статистики.
type StatsUpdateMessage struct {
	BaseMessage
	Data []models.PurposeStat `json:"data"`
}

// NewStatsUpdateMessage создает сообщение статистики по одному окну.
func NewStatsUpdateMessage(stats []models.PurposeStat) *StatsUpdateMessage {
	return &StatsUpdateMessage{
		BaseMessage: BaseMessage{Type: MessageTypeStatsUpdate, Timestamp: time.Now()},
		Data:        stats,
	}
}

// PriceWatcherUpdateMessage - сообщение о новой публикации состояния
// price watcher.
type PriceWatcherUpdateMessage struct {
	BaseMessage
	Data *PriceWatcherUpdateData `json:"data"`
}

// PriceWatcherUpdateData is the wire projection of
// models.PriceWatcherState.
type PriceWatcherUpdateData struct {
	LowPrice       string `json:"low_price"`
	MidPrice       string `json:"mid_price"`
	HighPrice      string `json:"high_price"`
	Source         string `json:"source"`
	IsActual       bool   `json:"is_actual"`
	IsPriceAnomaly bool   `json:"is_price_anomaly"`
}

// NewPriceWatcherUpdateMessage projects state into a message.
func NewPriceWatcherUpdateMessage(state models.PriceWatcherState) *PriceWatcherUpdateMessage {
	return &PriceWatcherUpdateMessage{
		BaseMessage: BaseMessage{Type: MessageTypePriceWatcherUpdate, Timestamp: time.Now()},
		Data: &PriceWatcherUpdateData{
			LowPrice:       state.LowPrice.String(),
			MidPrice:       state.MidPrice.String(),
			HighPrice:      state.HighPrice.String(),
			Source:         state.Source,
			IsActual:       state.IsActual,
			IsPriceAnomaly: state.IsPriceAnomaly,
		},
	}
}
