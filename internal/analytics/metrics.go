package analytics

import "github.com/trogers1052/trade-ledger-service/internal/models"

// PerformanceMetrics is the full performance report for one account
type PerformanceMetrics struct {
	TotalReturn        float64 `json:"total_return"`
	TotalReturnPercent float64 `json:"total_return_percent"`
	SharpeRatio        float64 `json:"sharpe_ratio"`
	Drawdown
	TradeStats
	EquityCurve []EquityPoint `json:"equity_curve"`
}

// Calculate builds the report with the default risk free rate
func Calculate(trades []*models.Trade, initialEquity, currentEquity float64) PerformanceMetrics {
	return CalculateWithRiskFree(trades, initialEquity, currentEquity, DefaultRiskFreeRate)
}

// CalculateWithRiskFree builds the report from the ledger snapshot and the
// account equity figures.
func CalculateWithRiskFree(trades []*models.Trade, initialEquity, currentEquity, riskFreeRate float64) PerformanceMetrics {
	curve := BuildEquityCurve(trades, initialEquity)

	m := PerformanceMetrics{
		TotalReturn: currentEquity - initialEquity,
		SharpeRatio: SharpeRatio(CalculateReturns(curve), riskFreeRate),
		Drawdown:    MaxDrawdown(curve),
		TradeStats:  CalculateTradeStats(trades),
		EquityCurve: curve,
	}
	if initialEquity != 0 {
		m.TotalReturnPercent = m.TotalReturn / initialEquity * 100
	}
	return m
}
