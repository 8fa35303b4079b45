package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/lsmc/internal/pricing/domain"
)

// PricingResultModel 定价结果数据库模型
type PricingResultModel struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
	RunID           string    `gorm:"column:run_id;type:char(36);uniqueIndex;not null"`
	Symbol          string    `gorm:"column:symbol;type:varchar(32);index:idx_symbol_calculated;not null"`
	OptionType      string    `gorm:"column:option_type;type:varchar(8);not null"`
	PricingModel    string    `gorm:"column:pricing_model;type:varchar(32)"`
	OptionPrice     string    `gorm:"column:option_price;type:decimal(32,18);not null"`
	StdDev          string    `gorm:"column:std_dev;type:decimal(32,18)"`
	StdErr          string    `gorm:"column:std_err;type:decimal(32,18)"`
	EuropeanPrice   string    `gorm:"column:european_price;type:decimal(32,18)"`
	UnderlyingPrice string    `gorm:"column:underlying_price;type:decimal(32,18);not null"`
	StrikePrice     string    `gorm:"column:strike_price;type:decimal(32,18);not null"`
	Volatility      float64   `gorm:"column:volatility"`
	RiskFreeRate    float64   `gorm:"column:risk_free_rate"`
	TimeStep        float64   `gorm:"column:time_step"`
	Steps           int       `gorm:"column:steps"`
	Paths           int       `gorm:"column:paths"`
	Repetitions     int       `gorm:"column:repetitions"`
	Degree          int       `gorm:"column:degree"`
	Seed            uint64    `gorm:"column:seed"`
	DurationMs      int64     `gorm:"column:duration_ms"`
	CalculatedAt    int64     `gorm:"column:calculated_at;type:bigint;index:idx_symbol_calculated;not null"`
}

func (PricingResultModel) TableName() string { return "pricing_results" }

// mapping helpers

func toPricingResultModel(res *domain.PricingResult) *PricingResultModel {
	if res == nil {
		return nil
	}
	return &PricingResultModel{
		ID:              res.ID,
		CreatedAt:       res.CreatedAt,
		UpdatedAt:       res.UpdatedAt,
		RunID:           res.RunID,
		Symbol:          res.Symbol,
		OptionType:      string(res.OptionType),
		PricingModel:    res.PricingModel,
		OptionPrice:     res.OptionPrice.String(),
		StdDev:          res.StdDev.String(),
		StdErr:          res.StdErr.String(),
		EuropeanPrice:   res.EuropeanPrice.String(),
		UnderlyingPrice: res.UnderlyingPrice.String(),
		StrikePrice:     res.StrikePrice.String(),
		Volatility:      res.Volatility,
		RiskFreeRate:    res.RiskFreeRate,
		TimeStep:        res.TimeStep,
		Steps:           res.Steps,
		Paths:           res.Paths,
		Repetitions:     res.Repetitions,
		Degree:          res.Degree,
		Seed:            res.Seed,
		DurationMs:      res.DurationMs,
		CalculatedAt:    res.CalculatedAt,
	}
}

func toPricingResult(m *PricingResultModel) *domain.PricingResult {
	if m == nil {
		return nil
	}
	return &domain.PricingResult{
		ID:              m.ID,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		RunID:           m.RunID,
		Symbol:          m.Symbol,
		OptionType:      domain.OptionType(m.OptionType),
		PricingModel:    m.PricingModel,
		OptionPrice:     parseDecimal(m.OptionPrice),
		StdDev:          parseDecimal(m.StdDev),
		StdErr:          parseDecimal(m.StdErr),
		EuropeanPrice:   parseDecimal(m.EuropeanPrice),
		UnderlyingPrice: parseDecimal(m.UnderlyingPrice),
		StrikePrice:     parseDecimal(m.StrikePrice),
		Volatility:      m.Volatility,
		RiskFreeRate:    m.RiskFreeRate,
		TimeStep:        m.TimeStep,
		Steps:           m.Steps,
		Paths:           m.Paths,
		Repetitions:     m.Repetitions,
		Degree:          m.Degree,
		Seed:            m.Seed,
		DurationMs:      m.DurationMs,
		CalculatedAt:    m.CalculatedAt,
	}
}

// parseDecimal 空串或非法值视为 0
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
