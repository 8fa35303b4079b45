package application

import (
	"fmt"
	"io"

	"github.com/wyfcoding/lsmc/internal/pricing/domain"
)

// PricingRequest 定价请求 DTO，未给出的字段使用默认参数
type PricingRequest struct {
	Symbol      string   `json:"symbol"`
	R           *float64 `json:"r"`
	K           *float64 `json:"k"`
	Dt          *float64 `json:"dt"`
	Steps       *int     `json:"steps"`
	S0          *float64 `json:"s0"`
	Sigma       *float64 `json:"sigma"`
	Paths       *int     `json:"paths"`
	Repetitions *int     `json:"repetitions"`
	Seed        *uint64  `json:"seed"`
	RandomSeed  bool     `json:"random_seed"`
	Degree      *int     `json:"degree"`
	Workers     *int     `json:"workers"`
	UseCache    bool     `json:"use_cache"`
}

// Command 在默认参数之上应用请求字段
func (r PricingRequest) Command(defaults domain.SimulationParameters) PriceAmericanPutCommand {
	p := defaults
	setIf(&p.R, r.R)
	setIf(&p.K, r.K)
	setIf(&p.Dt, r.Dt)
	setIf(&p.Steps, r.Steps)
	setIf(&p.S0, r.S0)
	setIf(&p.Sigma, r.Sigma)
	setIf(&p.Paths, r.Paths)
	setIf(&p.Repetitions, r.Repetitions)
	setIf(&p.Degree, r.Degree)
	setIf(&p.Workers, r.Workers)
	switch {
	case r.RandomSeed:
		p.Seed = nil
	case r.Seed != nil:
		p = p.WithSeed(*r.Seed)
	}
	return PriceAmericanPutCommand{Symbol: r.Symbol, Params: p, UseCache: r.UseCache}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// PricingResponse 定价响应 DTO
type PricingResponse struct {
	*domain.PricingResult
	EarlyExercisePremium string `json:"early_exercise_premium"`
	Report               string `json:"report"`
}

// NewPricingResponse 构造响应
func NewPricingResponse(r *domain.PricingResult) *PricingResponse {
	return &PricingResponse{
		PricingResult:        r,
		EarlyExercisePremium: r.EarlyExercisePremium().StringFixed(6),
		Report:               FormatReport(r),
	}
}

// FormatReport 两行文本输出：价格估计与估计的标准差
func FormatReport(r *domain.PricingResult) string {
	return fmt.Sprintf("Estimated price of the American put option: %.4f\nStandard deviation of the price estimates: %.4f\n",
		r.OptionPrice.InexactFloat64(), r.StdDev.InexactFloat64())
}

// WriteBoundary 逐行输出行权边界，无行权的时刻输出 NaN
func WriteBoundary(w io.Writer, p domain.SimulationParameters, boundary []float64) error {
	if _, err := fmt.Fprintln(w, "t\ttime\tboundary"); err != nil {
		return err
	}
	for t, b := range boundary {
		if _, err := fmt.Fprintf(w, "%d\t%.4f\t%.6f\n", t, float64(t)*p.Dt, b); err != nil {
			return err
		}
	}
	return nil
}
