// Package pnl computes realized profit and loss for closed trades and
// classifies why a position was exited.
package pnl

import (
	"github.com/shopspring/decimal"
	"github.com/trogers1052/trade-ledger-service/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Result is the realized profit/loss of a closed position
type Result struct {
	Pnl        decimal.Decimal `json:"pnl"`
	PnlPercent decimal.Decimal `json:"pnl_percent"`
}

// Compute returns the realized pnl of closing the trade at exitPrice.
// PnlPercent is relative to the entry cost and is zero when the cost is zero.
func Compute(trade *models.Trade, exitPrice decimal.Decimal) Result {
	var perShare decimal.Decimal
	if trade.Side == models.SideShort {
		perShare = trade.EntryPrice.Sub(exitPrice)
	} else {
		perShare = exitPrice.Sub(trade.EntryPrice)
	}
	pnl := perShare.Mul(trade.Qty)

	cost := trade.EntryPrice.Mul(trade.Qty)
	if cost.IsZero() {
		return Result{Pnl: pnl, PnlPercent: decimal.Zero}
	}
	return Result{
		Pnl:        pnl,
		PnlPercent: pnl.Div(cost.Abs()).Mul(hundred),
	}
}
