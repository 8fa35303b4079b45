package domain

import (
	"math"
)

// DefaultDegree 回归多项式默认阶数，对应基函数 [1, S, S²]
const DefaultDegree = 2

// SimulationParameters 定价参数，构造后只读
type SimulationParameters struct {
	R           float64 // 无风险利率 (年化)
	K           float64 // 行权价
	Dt          float64 // 时间步长 (年)
	Steps       int     // 时间步数 nt
	S0          float64 // 初始价格
	Sigma       float64 // 波动率
	Paths       int     // 每次重复的路径数 N
	Repetitions int     // 重复次数 R
	Seed        *uint64 // 随机种子，nil 表示按时钟取种子
	Degree      int     // 回归多项式阶数，0 表示默认值
	Workers     int     // 并发重复数，<=1 表示串行单一随机流
}

// DefaultSimulationParameters 返回参考参数组
func DefaultSimulationParameters() SimulationParameters {
	seed := uint64(42)
	return SimulationParameters{
		R:           0.06,
		K:           1.0,
		Dt:          1.0 / 12,
		Steps:       12,
		S0:          1.0,
		Sigma:       0.2,
		Paths:       10000,
		Repetitions: 100,
		Seed:        &seed,
		Degree:      DefaultDegree,
		Workers:     1,
	}
}

// Maturity 到期时间 T = nt·dt
func (p SimulationParameters) Maturity() float64 {
	return float64(p.Steps) * p.Dt
}

// WithSeed 返回带固定种子的副本
func (p SimulationParameters) WithSeed(seed uint64) SimulationParameters {
	p.Seed = &seed
	return p
}

// BasisSize 回归基函数个数
func (p SimulationParameters) BasisSize() int {
	return p.degree() + 1
}

func (p SimulationParameters) degree() int {
	if p.Degree <= 0 {
		return DefaultDegree
	}
	return p.Degree
}

// Validate 校验参数，返回第一个不合法的字段
func (p SimulationParameters) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"r", p.R}, {"k", p.K}, {"dt", p.Dt}, {"s0", p.S0}, {"sigma", p.Sigma},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return invalid(f.name, f.value, "must be finite")
		}
	}
	switch {
	case p.K <= 0:
		return invalid("k", p.K, "strike must be positive")
	case p.Dt <= 0:
		return invalid("dt", p.Dt, "time step must be positive")
	case p.Steps < 1:
		return invalid("steps", p.Steps, "at least one time step is required")
	case p.S0 <= 0:
		return invalid("s0", p.S0, "initial price must be positive")
	case p.Sigma < 0:
		return invalid("sigma", p.Sigma, "volatility must not be negative")
	case p.Paths < 1:
		return invalid("paths", p.Paths, "at least one path is required")
	case p.Repetitions < 1:
		return invalid("repetitions", p.Repetitions, "at least one repetition is required")
	case p.Degree < 0:
		return invalid("degree", p.Degree, "polynomial degree must not be negative")
	case p.Workers < 0:
		return invalid("workers", p.Workers, "worker count must not be negative")
	}
	return nil
}
