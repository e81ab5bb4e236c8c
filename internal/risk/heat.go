package risk

import (
	"math"

	"github.com/trogers1052/trade-ledger-service/internal/models"
)

// PortfolioRiskMetrics summarizes how much of the account is at risk
type PortfolioRiskMetrics struct {
	TotalHeat              float64 `json:"total_heat"`
	LargestPositionPercent float64 `json:"largest_position_percent"`
	NumberOfPositions      int     `json:"number_of_positions"`
	TotalExposure          float64 `json:"total_exposure"`
	AvailableRisk          float64 `json:"available_risk"`
}

// PortfolioHeat sums the risk of every open position. A position without a known
// stop price is counted as fully at risk.
func PortfolioHeat(positions []models.BrokerPosition, accountValue float64, stopPrices map[string]float64, limits Limits) (PortfolioRiskMetrics, error) {
	if accountValue <= 0 {
		return PortfolioRiskMetrics{}, ErrInvalidAccountValue
	}

	var totalRisk, totalExposure, largest float64
	for _, p := range positions {
		value := math.Abs(p.MarketValue.InexactFloat64())
		totalExposure += value
		if value > largest {
			largest = value
		}

		stop, ok := stopPrices[p.Symbol]
		if !ok {
			totalRisk += value
			continue
		}
		qty := math.Abs(p.Qty.InexactFloat64())
		totalRisk += math.Abs(p.AvgEntryPrice.InexactFloat64()-stop) * qty
	}

	heat := totalRisk / accountValue * 100
	return PortfolioRiskMetrics{
		TotalHeat:              heat,
		LargestPositionPercent: largest / accountValue * 100,
		NumberOfPositions:      len(positions),
		TotalExposure:          totalExposure,
		AvailableRisk:          math.Max(0, limits.MaxPortfolioHeat-heat),
	}, nil
}
