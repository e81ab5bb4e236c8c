// Package analytics derives performance statistics from closed ledger trades.
// Every function works on a snapshot handed in by the caller and never
// returns NaN or infinite values, except the documented profit factor case.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/trade-ledger-service/internal/models"
)

// EquityPoint is the account equity right after a trade closed
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// closedTrades keeps trades that carry both an exit time and a pnl,
// ordered by exit time with ties broken by trade id.
func closedTrades(trades []*models.Trade) []*models.Trade {
	closed := make([]*models.Trade, 0, len(trades))
	for _, t := range trades {
		if t == nil || t.ExitTime == nil || !t.Pnl.Valid {
			continue
		}
		closed = append(closed, t)
	}
	sort.SliceStable(closed, func(i, j int) bool {
		a, b := closed[i], closed[j]
		if !a.ExitTime.Equal(*b.ExitTime) {
			return a.ExitTime.Before(*b.ExitTime)
		}
		return a.ID < b.ID
	})
	return closed
}

// BuildEquityCurve replays closed trades on top of initialEquity. The curve
// starts with a synthetic point one day before the first exit.
func BuildEquityCurve(trades []*models.Trade, initialEquity float64) []EquityPoint {
	closed := closedTrades(trades)
	if len(closed) == 0 {
		return []EquityPoint{}
	}

	curve := make([]EquityPoint, 0, len(closed)+1)
	curve = append(curve, EquityPoint{
		Date:   closed[0].ExitTime.AddDate(0, 0, -1),
		Equity: initialEquity,
	})

	equity := decimal.NewFromFloat(initialEquity)
	for _, t := range closed {
		equity = equity.Add(t.Pnl.Decimal)
		curve = append(curve, EquityPoint{Date: *t.ExitTime, Equity: equity.InexactFloat64()})
	}
	return curve
}

// CalculateReturns returns the relative change between adjacent curve points.
// A step starting from zero equity counts as a zero return.
func CalculateReturns(curve []EquityPoint) []float64 {
	if len(curve) < 2 {
		return []float64{}
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	return returns
}

// ApproximateInitialEquity backs the starting equity out of the current equity
// and the realized pnl. Only valid when there were no deposits or withdrawals.
func ApproximateInitialEquity(currentEquity float64, trades []*models.Trade) float64 {
	total := decimal.Zero
	for _, t := range trades {
		if t != nil && t.Pnl.Valid {
			total = total.Add(t.Pnl.Decimal)
		}
	}
	return decimal.NewFromFloat(currentEquity).Sub(total).InexactFloat64()
}
