package domain

import (
	"fmt"
	"math"
)

// BlackScholesInput Black-Scholes 模型输入
type BlackScholesInput struct {
	S float64 // 标的资产价格
	K float64 // 执行价格
	T float64 // 到期时间 (年)
	R float64 // 无风险利率
	V float64 // 波动率
}

// EuropeanPutPrice 同参数欧式看跌期权的 Black-Scholes 价格
// 与 LSMC 估计对比可得提前行权溢价；贴现因子溢出时返回 ErrNumericalOverflow
func EuropeanPutPrice(params SimulationParameters) (float64, error) {
	price := BlackScholesPut(BlackScholesInput{
		S: params.S0,
		K: params.K,
		T: params.Maturity(),
		R: params.R,
		V: params.Sigma,
	})
	if !isFinite(price) {
		return 0, fmt.Errorf("european put price %v: %w", price, ErrNumericalOverflow)
	}
	return price, nil
}

// BlackScholesPut 计算欧式看跌期权价格
// V=0 或 T=0 时退化为贴现内在价值
func BlackScholesPut(input BlackScholesInput) float64 {
	discK := input.K * math.Exp(-input.R*input.T)
	if input.V == 0 || input.T == 0 {
		return math.Max(discK-input.S, 0)
	}
	sqrtT := math.Sqrt(input.T)
	d1 := (math.Log(input.S/input.K) + (input.R+0.5*input.V*input.V)*input.T) / (input.V * sqrtT)
	d2 := d1 - input.V*sqrtT
	return discK*normCdf(-d2) - input.S*normCdf(-d1)
}

// normCdf 标准正态分布累积分布函数
func normCdf(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
