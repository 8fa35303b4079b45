package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingResult 定价结果实体
type PricingResult struct {
	ID              uint            `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	RunID           string          `json:"run_id"`
	Symbol          string          `json:"symbol"`
	OptionType      OptionType      `json:"option_type"`
	PricingModel    string          `json:"pricing_model"`
	OptionPrice     decimal.Decimal `json:"option_price"`
	StdDev          decimal.Decimal `json:"std_dev"`
	StdErr          decimal.Decimal `json:"std_err"`
	EuropeanPrice   decimal.Decimal `json:"european_price"`
	UnderlyingPrice decimal.Decimal `json:"underlying_price"`
	StrikePrice     decimal.Decimal `json:"strike_price"`
	Volatility      float64         `json:"volatility"`
	RiskFreeRate    float64         `json:"risk_free_rate"`
	TimeStep        float64         `json:"time_step"`
	Steps           int             `json:"steps"`
	Paths           int             `json:"paths"`
	Repetitions     int             `json:"repetitions"`
	Degree          int             `json:"degree"`
	Seed            uint64          `json:"seed"`
	DurationMs      int64           `json:"duration_ms"`
	CalculatedAt    int64           `json:"calculated_at"`
}

// EarlyExercisePremium 美式价格相对欧式价格的溢价
func (r *PricingResult) EarlyExercisePremium() decimal.Decimal {
	return r.OptionPrice.Sub(r.EuropeanPrice)
}
