// 包 定价服务的领域模型：基于 Longstaff-Schwartz 最小二乘蒙特卡洛 (LSMC) 的美式看跌期权定价
package domain

// OptionType 期权类型
type OptionType string

// OptionTypePut 看跌期权
const OptionTypePut OptionType = "PUT"

// PricingModelLSMC 定价模型名称
const PricingModelLSMC = "LongstaffSchwartz"

// NormalSource 标准正态随机数来源
// *rand.Rand (math/rand/v2) 满足该接口
type NormalSource interface {
	NormFloat64() float64
}
