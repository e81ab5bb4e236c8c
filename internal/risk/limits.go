package risk

import "fmt"

const (
	DefaultMaxPositionSizePercent = 10.0
	DefaultMaxPortfolioHeat       = 20.0
)

// Limits are the configured portfolio risk ceilings, in percent of account value
type Limits struct {
	MaxPositionSizePercent float64 `json:"max_position_size_percent"`
	MaxPortfolioHeat       float64 `json:"max_portfolio_heat"`
}

// DefaultLimits returns the stock ceilings
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSizePercent: DefaultMaxPositionSizePercent,
		MaxPortfolioHeat:       DefaultMaxPortfolioHeat,
	}
}

// ValidationResult lists every limit a proposed order violates
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func (v *ValidationResult) add(format string, args ...any) {
	v.Valid = false
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// ValidateLimits checks an order value and the current portfolio heat against limits.
// It never fails; violations are reported as human readable messages.
func ValidateLimits(orderValue, accountValue, currentHeat float64, limits Limits) ValidationResult {
	res := ValidationResult{Valid: true, Errors: []string{}}

	if accountValue <= 0 {
		res.add("account value must be positive, got %.2f", accountValue)
		return res
	}

	sizePct := orderValue / accountValue * 100
	if sizePct > limits.MaxPositionSizePercent {
		res.add("position size %.2f%% exceeds maximum %.2f%%", sizePct, limits.MaxPositionSizePercent)
	}
	if currentHeat > limits.MaxPortfolioHeat {
		res.add("portfolio heat %.2f%% exceeds maximum %.2f%%", currentHeat, limits.MaxPortfolioHeat)
	}
	return res
}
