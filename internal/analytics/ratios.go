package analytics

import (
	"math"
	"strconv"
	"time"
)

const (
	// DefaultRiskFreeRate is the annual risk free rate used for the Sharpe ratio
	DefaultRiskFreeRate = 0.02
	// TradingDaysPerYear annualizes a daily return series
	TradingDaysPerYear = 252

	// stdDevEpsilon absorbs float noise in series that are constant in exact arithmetic
	stdDevEpsilon = 1e-12
)

// Ratio is a float that serializes +Inf as the string "Infinity"
type Ratio float64

// MarshalJSON implements json.Marshaler
func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(f):
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

// SharpeRatio annualizes the mean excess return per unit of volatility of a
// daily return series. Series shorter than two points or with no volatility yield 0.
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(n)

	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	stdDev := math.Sqrt(sq / float64(n))
	if stdDev < stdDevEpsilon {
		return 0
	}

	dailyRiskFree := riskFreeRate / TradingDaysPerYear
	return (mean - dailyRiskFree) / stdDev * math.Sqrt(TradingDaysPerYear)
}

// Drawdown is the largest peak to trough decline of an equity curve
type Drawdown struct {
	MaxDrawdown        float64    `json:"max_drawdown"`
	MaxDrawdownPercent float64    `json:"max_drawdown_percent"`
	PeakDate           *time.Time `json:"peak_date,omitempty"`
	TroughDate         *time.Time `json:"trough_date,omitempty"`
}

// MaxDrawdown walks the curve once, tracking the running peak
func MaxDrawdown(curve []EquityPoint) Drawdown {
	var dd Drawdown
	if len(curve) == 0 {
		return dd
	}

	peak := curve[0].Equity
	peakDate := curve[0].Date
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
			peakDate = p.Date
			continue
		}

		drop := peak - p.Equity
		if drop <= dd.MaxDrawdown {
			continue
		}
		dd.MaxDrawdown = drop
		dd.MaxDrawdownPercent = 0
		if peak > 0 {
			dd.MaxDrawdownPercent = drop / peak * 100
		}
		start, end := peakDate, p.Date
		dd.PeakDate = &start
		dd.TroughDate = &end
	}
	return dd
}
