package domain

import "time"

const (
	OptionPricedEventType = "OptionPriced"
	PricingErrorEventType = "PricingError"
)

// OptionPricedEvent 期权定价完成事件
type OptionPricedEvent struct {
	RunID           string     `json:"run_id"`
	Symbol          string     `json:"symbol"`
	OptionType      OptionType `json:"option_type"`
	StrikePrice     float64    `json:"strike_price"`
	Maturity        float64    `json:"maturity"`
	OptionPrice     float64    `json:"option_price"`
	StdDev          float64    `json:"std_dev"`
	UnderlyingPrice float64    `json:"underlying_price"`
	Volatility      float64    `json:"volatility"`
	RiskFreeRate    float64    `json:"risk_free_rate"`
	Repetitions     int        `json:"repetitions"`
	Paths           int        `json:"paths"`
	PricingModel    string     `json:"pricing_model"`
	CalculatedAt    int64      `json:"calculated_at"`
	OccurredOn      time.Time  `json:"occurred_on"`
}

// PricingErrorEvent 定价错误事件
type PricingErrorEvent struct {
	RunID       string     `json:"run_id"`
	Symbol      string     `json:"symbol"`
	OptionType  OptionType `json:"option_type"`
	StrikePrice float64    `json:"strike_price"`
	Maturity    float64    `json:"maturity"`
	Error       string     `json:"error"`
	ErrorCode   string     `json:"error_code"`
	OccurredAt  int64      `json:"occurred_at"`
	OccurredOn  time.Time  `json:"occurred_on"`
}
