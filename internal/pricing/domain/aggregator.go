package domain

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// AggregateResult R 次重复的汇总结果
type AggregateResult struct {
	Mean         float64   // 价格估计均值
	StdDev       float64   // 总体标准差
	SampleStdDev float64   // 样本标准差 (R=1 时为 0)
	StdErr       float64   // 均值标准误 SampleStdDev/√R
	Estimates    []float64 // 按重复序号排列的每次估计
	Seed         uint64    // 实际使用的种子
}

// RepetitionReport 单次重复完成后的回调数据
type RepetitionReport struct {
	Repetition         int
	Price              float64
	Elapsed            time.Duration
	SkippedSteps       int
	RankDeficientSteps int
}

// AggregatorOption 配置 RepetitionAggregator
type AggregatorOption func(*RepetitionAggregator)

// WithRepetitionObserver 注册重复完成回调，并发模式下会被多个 goroutine 调用
func WithRepetitionObserver(fn func(RepetitionReport)) AggregatorOption {
	return func(a *RepetitionAggregator) {
		a.observer = fn
	}
}

// RepetitionAggregator 驱动 R 次独立的 {路径生成, 反向归纳}，汇总价格估计
//
// 随机流策略：
//   - Workers<=1：单一 PCG 流 (seed, 0) 在各次重复间连续消耗
//   - Workers>1：第 rep 次重复使用独立的 PCG 流 (seed, rep+1)，结果与调度顺序无关
type RepetitionAggregator struct {
	simulator *PathSimulator
	observer  func(RepetitionReport)
}

// NewRepetitionAggregator 创建聚合器
func NewRepetitionAggregator(opts ...AggregatorOption) *RepetitionAggregator {
	a := &RepetitionAggregator{simulator: NewPathSimulator()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run 执行全部重复并返回均值与标准差
func (a *RepetitionAggregator) Run(ctx context.Context, params SimulationParameters) (*AggregateResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	seed := uint64(time.Now().UnixNano())
	if params.Seed != nil {
		seed = *params.Seed
	}
	solver := NewExerciseBoundarySolver(params.Degree)
	estimates := make([]float64, params.Repetitions)

	if params.Workers <= 1 {
		rng := rand.New(rand.NewPCG(seed, 0))
		for rep := range estimates {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			price, err := a.repeat(rep, params, solver, rng)
			if err != nil {
				return nil, err
			}
			estimates[rep] = price
		}
		return summarize(estimates, seed), nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(params.Workers)
	for rep := range estimates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seed, uint64(rep)+1))
			price, err := a.repeat(rep, params, solver, rng)
			if err != nil {
				return err
			}
			estimates[rep] = price
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summarize(estimates, seed), nil
}

// repeat 单次重复：每次都重新生成路径与求解状态，不复用上一次的任何数据
func (a *RepetitionAggregator) repeat(rep int, params SimulationParameters, solver *ExerciseBoundarySolver, rng NormalSource) (float64, error) {
	start := time.Now()
	batch, err := a.simulator.Simulate(params, rng)
	if err != nil {
		return 0, err
	}
	sol, err := solver.Solve(batch, params)
	if err != nil {
		return 0, err
	}
	if a.observer != nil {
		a.observer(RepetitionReport{
			Repetition:         rep,
			Price:              sol.Price,
			Elapsed:            time.Since(start),
			SkippedSteps:       len(sol.SkippedSteps),
			RankDeficientSteps: len(sol.RankDeficientSteps),
		})
	}
	return sol.Price, nil
}

func summarize(estimates []float64, seed uint64) *AggregateResult {
	mean, std := stat.PopMeanStdDev(estimates, nil)
	res := &AggregateResult{
		Mean:      mean,
		StdDev:    std,
		Estimates: estimates,
		Seed:      seed,
	}
	if n := len(estimates); n > 1 {
		res.SampleStdDev = stat.StdDev(estimates, nil)
		res.StdErr = res.SampleStdDev / math.Sqrt(float64(n))
	}
	return res
}
