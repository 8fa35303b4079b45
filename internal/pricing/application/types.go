package application

import (
	"fmt"

	"github.com/wyfcoding/lsmc/internal/pricing/domain"
	"github.com/wyfcoding/lsmc/pkg/config"
)

// DefaultSymbol 未指定标的时使用的记录代码
const DefaultSymbol = "AMERICAN-PUT"

// PriceAmericanPutCommand 美式看跌期权定价命令
type PriceAmericanPutCommand struct {
	Symbol   string
	Params   domain.SimulationParameters
	UseCache bool
}

// NewSimulationParameters 把配置转换为领域参数
func NewSimulationParameters(cfg config.SimulationConfig) domain.SimulationParameters {
	params := domain.SimulationParameters{
		R:           cfg.R,
		K:           cfg.K,
		Dt:          cfg.Dt,
		Steps:       cfg.Steps,
		S0:          cfg.S0,
		Sigma:       cfg.Sigma,
		Paths:       cfg.Paths,
		Repetitions: cfg.Repetitions,
		Degree:      cfg.Degree,
		Workers:     cfg.Workers,
	}
	if !cfg.RandomSeed {
		params = params.WithSeed(cfg.Seed)
	}
	return params
}

// CacheKey 固定种子运行的缓存键，参数与随机流策略相同则结果相同
func CacheKey(symbol string, p domain.SimulationParameters) string {
	if p.Seed == nil {
		return ""
	}
	stream := "seq"
	if p.Workers > 1 {
		stream = "par"
	}
	return fmt.Sprintf("%s:r=%g:k=%g:dt=%g:nt=%d:s0=%g:sigma=%g:n=%d:reps=%d:deg=%d:seed=%d:%s",
		symbol, p.R, p.K, p.Dt, p.Steps, p.S0, p.Sigma, p.Paths, p.Repetitions, p.BasisSize()-1, *p.Seed, stream)
}

// CheckRequestLimits 校验外部请求的规模上限，超限返回带字段名的 ConfigurationError
// 上限为 0 的字段不检查
func CheckRequestLimits(limits config.RequestLimitConfig, p domain.SimulationParameters) error {
	for _, l := range []struct {
		field string
		value int
		max   int
	}{
		{"paths", p.Paths, limits.MaxPaths},
		{"steps", p.Steps, limits.MaxSteps},
		{"repetitions", p.Repetitions, limits.MaxRepetitions},
		{"workers", p.Workers, limits.MaxWorkers},
	} {
		if l.max > 0 && l.value > l.max {
			return &domain.ConfigurationError{
				Field:  l.field,
				Value:  l.value,
				Reason: fmt.Sprintf("exceeds the per-request limit of %d", l.max),
			}
		}
	}
	return nil
}
