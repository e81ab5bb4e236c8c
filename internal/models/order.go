package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the brokerage side of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the brokerage order type
type OrderType string

const (
	OrderTypeMarket       OrderType = "market"
	OrderTypeLimit        OrderType = "limit"
	OrderTypeStop         OrderType = "stop"
	OrderTypeStopLimit    OrderType = "stop_limit"
	OrderTypeTrailingStop OrderType = "trailing_stop"
)

// OrderStatusFilled is the only order status the reconciler books
const OrderStatusFilled = "filled"

// Order is a brokerage order as reported by the brokerage API. Read-only for this service.
type Order struct {
	ID             string              `json:"id"`
	Symbol         string              `json:"symbol"`
	Side           OrderSide           `json:"side"`
	Type           OrderType           `json:"type"`
	Qty            decimal.NullDecimal `json:"qty"`
	FilledQty      decimal.NullDecimal `json:"filled_qty"`
	FilledAvgPrice decimal.NullDecimal `json:"filled_avg_price"`
	LimitPrice     decimal.NullDecimal `json:"limit_price"`
	StopPrice      decimal.NullDecimal `json:"stop_price"`
	FilledAt       *time.Time          `json:"filled_at,omitempty"`
	Status         string              `json:"status"`
}

// IsFilled reports whether the order has been completely filled
func (o *Order) IsFilled() bool {
	return o.Status == OrderStatusFilled
}

// FillPrice returns the average fill price, falling back to the limit price
func (o *Order) FillPrice() (decimal.Decimal, bool) {
	if o.FilledAvgPrice.Valid {
		return o.FilledAvgPrice.Decimal, true
	}
	if o.LimitPrice.Valid {
		return o.LimitPrice.Decimal, true
	}
	return decimal.Zero, false
}

// FillQty returns the filled quantity, falling back to the ordered quantity
func (o *Order) FillQty() decimal.Decimal {
	if o.FilledQty.Valid && !o.FilledQty.Decimal.IsZero() {
		return o.FilledQty.Decimal
	}
	if o.Qty.Valid {
		return o.Qty.Decimal
	}
	return decimal.Zero
}
