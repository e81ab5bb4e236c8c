// Package risk sizes positions from a risk budget and measures how much of
// the account is at risk across open positions.
package risk

import "math"

// PositionSizeResult is the outcome of sizing a position from a risk budget
type PositionSizeResult struct {
	Shares              float64 `json:"shares"`
	PositionValue       float64 `json:"position_value"`
	RiskAmount          float64 `json:"risk_amount"`
	RiskPerShare        float64 `json:"risk_per_share"`
	PositionSizePercent float64 `json:"position_size_percent"`
}

// RiskRewardResult describes a planned trade's reward relative to its risk, per share
type RiskRewardResult struct {
	Ratio         float64 `json:"ratio"`
	RiskAmount    float64 `json:"risk_amount"`
	RewardAmount  float64 `json:"reward_amount"`
	RiskPercent   float64 `json:"risk_percent"`
	RewardPercent float64 `json:"reward_percent"`
}

// PositionSize returns how many whole shares can be bought so that hitting the
// stop loses riskPercent of accountValue.
func PositionSize(accountValue, riskPercent, entryPrice, stopPrice float64) (PositionSizeResult, error) {
	if accountValue <= 0 {
		return PositionSizeResult{}, ErrInvalidAccountValue
	}
	if riskPercent < 0 {
		return PositionSizeResult{}, ErrInvalidRiskTolerance
	}
	if entryPrice <= 0 {
		return PositionSizeResult{}, ErrInvalidPrice
	}

	riskPerShare := math.Abs(entryPrice - stopPrice)
	if riskPerShare == 0 {
		return PositionSizeResult{}, ErrInvalidRiskDistance
	}

	riskAmount := accountValue * riskPercent / 100
	shares := math.Floor(riskAmount / riskPerShare)
	positionValue := shares * entryPrice

	return PositionSizeResult{
		Shares:              shares,
		PositionValue:       positionValue,
		RiskAmount:          riskAmount,
		RiskPerShare:        riskPerShare,
		PositionSizePercent: positionValue / accountValue * 100,
	}, nil
}

// RiskReward compares the distance to target with the distance to stop
func RiskReward(entryPrice, stopPrice, targetPrice float64) (RiskRewardResult, error) {
	if entryPrice <= 0 {
		return RiskRewardResult{}, ErrInvalidPrice
	}

	riskPerShare := math.Abs(entryPrice - stopPrice)
	if riskPerShare == 0 {
		return RiskRewardResult{}, ErrInvalidRiskDistance
	}
	rewardPerShare := math.Abs(targetPrice - entryPrice)

	return RiskRewardResult{
		Ratio:         rewardPerShare / riskPerShare,
		RiskAmount:    riskPerShare,
		RewardAmount:  rewardPerShare,
		RiskPercent:   riskPerShare / entryPrice * 100,
		RewardPercent: rewardPerShare / entryPrice * 100,
	}, nil
}

// Recommendation is a sizing result capped by buying power and checked against limits
type Recommendation struct {
	PositionSizeResult
	Capped bool     `json:"capped"`
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// RecommendationInput gathers the inputs of RecommendedPositionSize.
// A nil BuyingPower leaves the size uncapped.
type RecommendationInput struct {
	AccountValue float64  `json:"account_value"`
	RiskPercent  float64  `json:"risk_percent"`
	EntryPrice   float64  `json:"entry_price"`
	StopPrice    float64  `json:"stop_price"`
	BuyingPower  *float64 `json:"buying_power,omitempty"`
	CurrentHeat  float64  `json:"current_heat"`
}

// RecommendedPositionSize always returns a usable recommendation. Sizing failures
// are reported through Valid and Errors instead of an error value.
func RecommendedPositionSize(in RecommendationInput, limits Limits) Recommendation {
	size, err := PositionSize(in.AccountValue, in.RiskPercent, in.EntryPrice, in.StopPrice)
	if err != nil {
		return Recommendation{Valid: false, Errors: []string{err.Error()}}
	}

	rec := Recommendation{PositionSizeResult: size}
	if in.BuyingPower != nil && size.PositionValue > *in.BuyingPower {
		rec.Shares = math.Floor(math.Max(0, *in.BuyingPower) / in.EntryPrice)
		rec.PositionValue = rec.Shares * in.EntryPrice
		rec.PositionSizePercent = rec.PositionValue / in.AccountValue * 100
		rec.Capped = true
	}

	check := ValidateLimits(rec.PositionValue, in.AccountValue, in.CurrentHeat, limits)
	rec.Valid = check.Valid
	rec.Errors = check.Errors
	return rec
}
