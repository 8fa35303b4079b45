package domain

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// PathBatch 一批模拟价格路径，形状 (N, nt+1)，生成后只读
type PathBatch struct {
	prices *mat.Dense
}

// NewPathBatch 由给定价格表构造路径批次，每行一条路径，列为时间索引 0..nt
func NewPathBatch(rows [][]float64) (*PathBatch, error) {
	if len(rows) == 0 || len(rows[0]) < 2 {
		return nil, fmt.Errorf("path batch needs at least one path and two time points")
	}
	cols := len(rows[0])
	prices := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("path %d has %d points, want %d", i, len(row), cols)
		}
		prices.SetRow(i, row)
	}
	return &PathBatch{prices: prices}, nil
}

// Paths 路径数 N
func (b *PathBatch) Paths() int {
	r, _ := b.prices.Dims()
	return r
}

// Steps 时间步数 nt
func (b *PathBatch) Steps() int {
	_, c := b.prices.Dims()
	return c - 1
}

// At 返回第 path 条路径在时间索引 t 的价格
func (b *PathBatch) At(path, t int) float64 {
	return b.prices.At(path, t)
}

// Column 把时间索引 t 上所有路径的价格写入 dst 并返回
func (b *PathBatch) Column(dst []float64, t int) []float64 {
	return mat.Col(dst, t, b.prices)
}

// PathSimulator 风险中性几何布朗运动路径生成器
type PathSimulator struct{}

// NewPathSimulator 创建路径生成器
func NewPathSimulator() *PathSimulator {
	return &PathSimulator{}
}

// Simulate 生成一批路径
// 采用对数正态精确转移：S(t+dt) = S(t) * exp((r - σ²/2)dt + σ√dt·Z)
// 每个时间列按路径顺序抽取 N 个正态数，共消耗 N·nt 个
func (s *PathSimulator) Simulate(params SimulationParameters, rng NormalSource) (*PathBatch, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("path simulator: nil random source")
	}

	n, nt := params.Paths, params.Steps
	prices := mat.NewDense(n, nt+1, nil)
	for i := 0; i < n; i++ {
		prices.Set(i, 0, params.S0)
	}

	drift := (params.R - 0.5*params.Sigma*params.Sigma) * params.Dt
	vol := params.Sigma * math.Sqrt(params.Dt)

	for t := 1; t <= nt; t++ {
		for i := 0; i < n; i++ {
			z := rng.NormFloat64()
			next := prices.At(i, t-1) * math.Exp(drift+vol*z)
			if math.IsInf(next, 0) || math.IsNaN(next) {
				return nil, fmt.Errorf("path %d step %d: simulated price %v: %w", i, t, next, ErrNumericalOverflow)
			}
			prices.Set(i, t, next)
		}
	}
	return &PathBatch{prices: prices}, nil
}

// putPayoff 看跌期权内在价值
func putPayoff(k, s float64) float64 {
	return math.Max(k-s, 0)
}
