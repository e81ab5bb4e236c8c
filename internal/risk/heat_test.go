package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/trade-ledger-service/internal/models"
)

func position(symbol string, qty, entry, marketValue float64) models.BrokerPosition {
	return models.BrokerPosition{
		Symbol:        symbol,
		Qty:           decimal.NewFromFloat(qty),
		AvgEntryPrice: decimal.NewFromFloat(entry),
		MarketValue:   decimal.NewFromFloat(marketValue),
	}
}

func TestPortfolioHeat(t *testing.T) {
	limits := DefaultLimits()

	t.Run("uses stop distance when known", func(t *testing.T) {
		positions := []models.BrokerPosition{
			position("AAPL", 100, 150, 16000),
			position("MSFT", 10, 400, 4100),
		}
		stops := map[string]float64{"AAPL": 140, "MSFT": 380}

		got, err := PortfolioHeat(positions, 100000, stops, limits)
		require.NoError(t, err)

		// 100*10 + 10*20 = 1200
		assert.InDelta(t, 1.2, got.TotalHeat, 1e-9)
		assert.Equal(t, 20100.0, got.TotalExposure)
		assert.Equal(t, 2, got.NumberOfPositions)
		assert.InDelta(t, 16.0, got.LargestPositionPercent, 1e-9)
		assert.InDelta(t, 18.8, got.AvailableRisk, 1e-9)
	})

	t.Run("missing stop counts the whole position", func(t *testing.T) {
		positions := []models.BrokerPosition{position("TSLA", 50, 200, 10000)}

		got, err := PortfolioHeat(positions, 100000, nil, limits)
		require.NoError(t, err)

		assert.InDelta(t, 10.0, got.TotalHeat, 1e-9)
		assert.InDelta(t, 10.0, got.AvailableRisk, 1e-9)
	})

	t.Run("short positions count by absolute value", func(t *testing.T) {
		positions := []models.BrokerPosition{position("SPY", -10, 500, -5000)}

		got, err := PortfolioHeat(positions, 50000, map[string]float64{"SPY": 510}, limits)
		require.NoError(t, err)

		assert.Equal(t, 5000.0, got.TotalExposure)
		assert.InDelta(t, 0.2, got.TotalHeat, 1e-9)
	})

	t.Run("available risk never negative", func(t *testing.T) {
		positions := []models.BrokerPosition{position("NVDA", 100, 300, 30000)}

		got, err := PortfolioHeat(positions, 100000, nil, limits)
		require.NoError(t, err)

		assert.InDelta(t, 30.0, got.TotalHeat, 1e-9)
		assert.Equal(t, 0.0, got.AvailableRisk)
	})

	t.Run("no positions", func(t *testing.T) {
		got, err := PortfolioHeat(nil, 100000, nil, limits)
		require.NoError(t, err)

		assert.Equal(t, 0.0, got.TotalHeat)
		assert.Equal(t, 20.0, got.AvailableRisk)
	})

	t.Run("invalid account value", func(t *testing.T) {
		_, err := PortfolioHeat(nil, 0, nil, limits)
		require.ErrorIs(t, err, ErrInvalidAccountValue)
	})
}
