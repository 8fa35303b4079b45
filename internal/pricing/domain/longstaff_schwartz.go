package domain

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// RegressionRecord 每个回溯步的回归系数表，形状 (基函数个数, nt)
// 第 t 列为时间索引 t 的延续价值回归系数，未回归的列为零
type RegressionRecord struct {
	betas *mat.Dense
}

// Terms 基函数个数
func (r *RegressionRecord) Terms() int {
	rows, _ := r.betas.Dims()
	return rows
}

// Coefficients 返回时间索引 t 的回归系数副本
func (r *RegressionRecord) Coefficients(t int) []float64 {
	return mat.Col(nil, t, r.betas)
}

// Solution 单批路径的求解结果
type Solution struct {
	Price              float64           // 0 时刻价格估计
	Betas              *RegressionRecord // 诊断用回归系数
	ExerciseTimes      []int             // 每条路径的最优行权时间索引，取值 1..nt
	SkippedSteps       []int             // 无价内路径而跳过回归的时间索引
	RankDeficientSteps []int             // 设计矩阵秩亏的时间索引
}

// ExerciseBoundary 每个时间索引上发生行权的最高标的价格，无行权为 NaN
// 索引 0 恒为 NaN，结果长度 nt+1
func (s *Solution) ExerciseBoundary(batch *PathBatch, k float64) []float64 {
	boundary := make([]float64, batch.Steps()+1)
	for t := range boundary {
		boundary[t] = math.NaN()
	}
	for path, t := range s.ExerciseTimes {
		price := batch.At(path, t)
		if price >= k {
			continue
		}
		if math.IsNaN(boundary[t]) || price > boundary[t] {
			boundary[t] = price
		}
	}
	return boundary
}

// exerciseState 回溯过程中每条路径的可变状态，只属于一次 Solve 调用
type exerciseState struct {
	payoff       []float64 // 贴现到当前回溯时刻的现金流
	exerciseTime []int
}

func newExerciseState(intrinsic []float64, nt int) *exerciseState {
	st := &exerciseState{
		payoff:       make([]float64, len(intrinsic)),
		exerciseTime: make([]int, len(intrinsic)),
	}
	copy(st.payoff, intrinsic)
	for i := range st.exerciseTime {
		st.exerciseTime[i] = nt
	}
	return st
}

// ExerciseBoundarySolver 实现 Longstaff-Schwartz (LSM) 反向归纳
type ExerciseBoundarySolver struct {
	degree int // 回归多项式的阶数
	// onStep 每个回溯步更新行权时间后调用，仅测试使用
	onStep func(t int, exerciseTime []int)
}

// NewExerciseBoundarySolver 创建求解器，degree<=0 时使用默认二次基
func NewExerciseBoundarySolver(degree int) *ExerciseBoundarySolver {
	if degree <= 0 {
		degree = DefaultDegree
	}
	return &ExerciseBoundarySolver{degree: degree}
}

// Degree 回归多项式阶数
func (s *ExerciseBoundarySolver) Degree() int {
	return s.degree
}

// Solve 对一批路径做反向归纳，返回 0 时刻价格估计与回归系数
func (s *ExerciseBoundarySolver) Solve(batch *PathBatch, params SimulationParameters) (*Solution, error) {
	if batch == nil {
		return nil, fmt.Errorf("exercise boundary solver: nil path batch")
	}
	n, nt := batch.Paths(), batch.Steps()
	if nt < 1 {
		return nil, invalid("steps", nt, "at least one time step is required")
	}
	terms := s.degree + 1
	disc := math.Exp(-params.R * params.Dt)

	// 到期日内在价值
	prices := batch.Column(nil, nt)
	intrinsic := make([]float64, n)
	for i, p := range prices {
		intrinsic[i] = putPayoff(params.K, p)
	}
	st := newExerciseState(intrinsic, nt)
	betas := mat.NewDense(terms, nt, nil)
	sol := &Solution{Betas: &RegressionRecord{betas: betas}}

	dcf := make([]float64, n)
	itm := make([]int, 0, n)
	for t := nt - 1; t >= 1; t-- {
		for i := range dcf {
			dcf[i] = disc * st.payoff[i]
			if !isFinite(dcf[i]) {
				return nil, fmt.Errorf("path %d step %d: discounted cash flow %v: %w", i, t, dcf[i], ErrNumericalOverflow)
			}
		}
		prices = batch.Column(prices, t)

		itm = itm[:0]
		for i, p := range prices {
			if p < params.K {
				itm = append(itm, i)
			}
		}
		if len(itm) == 0 {
			sol.SkippedSteps = append(sol.SkippedSteps, t)
			copy(st.payoff, dcf)
			if s.onStep != nil {
				s.onStep(t, st.exerciseTime)
			}
			continue
		}

		design := mat.NewDense(len(itm), terms, nil)
		target := make([]float64, len(itm))
		for row, i := range itm {
			x := 1.0
			for j := 0; j < terms; j++ {
				design.Set(row, j, x)
				x *= prices[i]
			}
			target[row] = dcf[i]
		}

		beta, fitted, deficient := leastSquares(design, target)
		betas.SetCol(t, beta)
		if deficient {
			sol.RankDeficientSteps = append(sol.RankDeficientSteps, t)
		}

		for row, i := range itm {
			intrinsic[i] = putPayoff(params.K, prices[i])
			if fitted[row] < intrinsic[i] {
				st.exerciseTime[i] = t
			}
		}
		for i := range st.payoff {
			if st.exerciseTime[i] == t {
				st.payoff[i] = intrinsic[i]
			} else {
				st.payoff[i] = dcf[i]
			}
		}
		if s.onStep != nil {
			s.onStep(t, st.exerciseTime)
		}
	}

	var sum float64
	for _, v := range st.payoff {
		sum += disc * v
	}
	sol.Price = sum / float64(n)
	if !isFinite(sol.Price) {
		return nil, fmt.Errorf("time-0 price estimate %v: %w", sol.Price, ErrNumericalOverflow)
	}
	sol.ExerciseTimes = st.exerciseTime
	return sol, nil
}

// leastSquares 求 X·β ≈ y 的最小范数最小二乘解，返回 β、拟合值与是否秩亏
// 小于 eps·max(m, n) 倍最大奇异值的奇异值视为零
func leastSquares(design *mat.Dense, target []float64) (beta, fitted []float64, deficient bool) {
	m, n := design.Dims()
	beta = make([]float64, n)
	fitted = make([]float64, m)

	var svd mat.SVD
	if !svd.Factorize(design, mat.SVDThin) {
		return beta, fitted, true
	}
	rank := svd.Rank(machineEpsilon * float64(max(m, n)))
	if rank == 0 {
		return beta, fitted, true
	}

	var x mat.VecDense
	svd.SolveVecTo(&x, mat.NewVecDense(m, target), rank)
	copy(beta, x.RawVector().Data)

	fit := mat.NewVecDense(m, fitted)
	fit.MulVec(design, &x)
	return beta, fitted, rank < n
}

const machineEpsilon = 0x1p-52

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
