package pnl

import "github.com/trogers1052/trade-ledger-service/internal/models"

// ClassifyExit maps the closing order's type to an exit reason.
// Any closing limit order counts as profit-taking, whatever the fill price was.
func ClassifyExit(order *models.Order, trade *models.Trade) models.ExitReason {
	switch order.Type {
	case models.OrderTypeTrailingStop:
		return models.ExitReasonTrailingStop
	case models.OrderTypeStop, models.OrderTypeStopLimit:
		return models.ExitReasonStopLoss
	case models.OrderTypeLimit:
		return models.ExitReasonTakeProfit
	default:
		return models.ExitReasonManual
	}
}
