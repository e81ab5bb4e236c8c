package models

import "time"

// Event type constants
const (
	EventTypeTradeOpened = "TRADE_OPENED"
	EventTypeTradeClosed = "TRADE_CLOSED"
	EventTypeOrderFilled = "ORDER_FILLED"
)

// TradeEvent represents a Kafka event for ledger changes
type TradeEvent struct {
	EventType string    `json:"event_type"`
	UserID    string    `json:"user_id"`
	Trade     *Trade    `json:"trade"`
	Timestamp time.Time `json:"timestamp"`
}

// FillEvent represents a pushed brokerage fill
type FillEvent struct {
	EventType string    `json:"event_type"`
	UserID    string    `json:"user_id"`
	Order     *Order    `json:"order"`
	Timestamp time.Time `json:"timestamp"`
}
