package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a ledger trade
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// TradeStatus is the lifecycle state of a ledger trade. The only transition is OPEN -> CLOSED.
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "OPEN"
	TradeStatusClosed TradeStatus = "CLOSED"
)

// ExitReason explains why a position was closed
type ExitReason string

const (
	ExitReasonStopLoss     ExitReason = "STOP_LOSS"
	ExitReasonTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitReasonTrailingStop ExitReason = "TRAILING_STOP"
	ExitReasonManual       ExitReason = "MANUAL"
)

// Trade is one round-trip position record in the ledger.
// Exit fields stay unset until the trade is closed and are then written together.
type Trade struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	Symbol       string              `json:"symbol"`
	Side         Side                `json:"side"`
	Qty          decimal.Decimal     `json:"qty"`
	EntryPrice   decimal.Decimal     `json:"entry_price"`
	EntryTime    time.Time           `json:"entry_time"`
	EntryOrderID string              `json:"entry_order_id"`
	ExitPrice    decimal.NullDecimal `json:"exit_price"`
	ExitTime     *time.Time          `json:"exit_time,omitempty"`
	ExitOrderID  string              `json:"exit_order_id,omitempty"`
	ExitReason   ExitReason          `json:"exit_reason,omitempty"`
	Pnl          decimal.NullDecimal `json:"pnl"`
	PnlPercent   decimal.NullDecimal `json:"pnl_percent"`
	Status       TradeStatus         `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// IsOpen reports whether the trade has not been closed yet
func (t *Trade) IsOpen() bool {
	return t.Status == TradeStatusOpen
}

// ClosesOn reports whether a fill on the given order side closes this trade
func (t *Trade) ClosesOn(side OrderSide) bool {
	switch t.Side {
	case SideLong:
		return side == OrderSideSell
	case SideShort:
		return side == OrderSideBuy
	}
	return false
}

// TradeClose carries every field written when a trade transitions to CLOSED
type TradeClose struct {
	ExitPrice   decimal.Decimal
	ExitTime    time.Time
	ExitOrderID string
	ExitReason  ExitReason
	Pnl         decimal.Decimal
	PnlPercent  decimal.Decimal
}

// Apply copies the close fields onto the trade and marks it CLOSED
func (c TradeClose) Apply(t *Trade) {
	exitTime := c.ExitTime
	t.ExitPrice = decimal.NewNullDecimal(c.ExitPrice)
	t.ExitTime = &exitTime
	t.ExitOrderID = c.ExitOrderID
	t.ExitReason = c.ExitReason
	t.Pnl = decimal.NewNullDecimal(c.Pnl)
	t.PnlPercent = decimal.NewNullDecimal(c.PnlPercent)
	t.Status = TradeStatusClosed
}
