package analytics

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/trade-ledger-service/internal/models"
)

// TradeStats aggregates win/loss statistics over trades with a realized pnl
type TradeStats struct {
	WinRate       float64 `json:"win_rate"`
	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`
	ProfitFactor  Ratio   `json:"profit_factor"`
	Expectancy    float64 `json:"expectancy"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
}

// CalculateTradeStats counts only trades with a pnl. AvgLoss is reported as a
// positive magnitude. ProfitFactor is +Inf when there are wins and no losses.
func CalculateTradeStats(trades []*models.Trade) TradeStats {
	var stats TradeStats
	totalWins, totalLosses := decimal.Zero, decimal.Zero

	for _, t := range trades {
		if t == nil || !t.Pnl.Valid {
			continue
		}
		stats.TotalTrades++
		switch pnl := t.Pnl.Decimal; {
		case pnl.IsPositive():
			stats.WinningTrades++
			totalWins = totalWins.Add(pnl)
		case pnl.IsNegative():
			stats.LosingTrades++
			totalLosses = totalLosses.Add(pnl.Abs())
		}
	}
	if stats.TotalTrades == 0 {
		return stats
	}

	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
	if stats.WinningTrades > 0 {
		stats.AvgWin = totalWins.Div(decimal.NewFromInt(int64(stats.WinningTrades))).InexactFloat64()
	}
	if stats.LosingTrades > 0 {
		stats.AvgLoss = totalLosses.Div(decimal.NewFromInt(int64(stats.LosingTrades))).InexactFloat64()
	}

	switch {
	case !totalLosses.IsZero():
		stats.ProfitFactor = Ratio(totalWins.Div(totalLosses).InexactFloat64())
	case totalWins.IsPositive():
		stats.ProfitFactor = Ratio(math.Inf(1))
	}

	winFraction := stats.WinRate / 100
	stats.Expectancy = winFraction*stats.AvgWin - (1-winFraction)*stats.AvgLoss
	return stats
}
