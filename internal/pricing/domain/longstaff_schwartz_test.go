package domain

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

// 经典 8 路径算例：S0=1, K=1.10, r=0.06, dt=1, 3 步，期望价格 ≈ 0.1144
var lsPaperPaths = [][]float64{
	{1.00, 1.09, 1.08, 1.34},
	{1.00, 1.16, 1.26, 1.54},
	{1.00, 1.22, 1.07, 1.03},
	{1.00, 0.93, 0.97, 0.92},
	{1.00, 1.11, 1.56, 1.52},
	{1.00, 0.76, 0.77, 0.90},
	{1.00, 0.92, 0.84, 1.01},
	{1.00, 0.88, 1.22, 1.34},
}

func lsPaperParams() SimulationParameters {
	return SimulationParameters{R: 0.06, K: 1.10, Dt: 1, Steps: 3, S0: 1, Paths: 8, Repetitions: 1}
}

func TestSolve_ReferenceExample(t *testing.T) {
	batch, err := NewPathBatch(lsPaperPaths)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	sol, err := NewExerciseBoundarySolver(2).Solve(batch, lsPaperParams())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !almostEqual(sol.Price, 0.1144, 5e-4) {
		t.Fatalf("price mismatch: got=%v want≈0.1144", sol.Price)
	}

	wantTimes := []int{3, 3, 3, 1, 3, 1, 1, 1}
	for i, want := range wantTimes {
		if sol.ExerciseTimes[i] != want {
			t.Fatalf("path %d exercise time: got=%d want=%d", i, sol.ExerciseTimes[i], want)
		}
	}

	// t=2 回归系数 ≈ (-1.070, 2.983, -1.813)
	beta := sol.Betas.Coefficients(2)
	for j, want := range []float64{-1.070, 2.983, -1.813} {
		if !almostEqual(beta[j], want, 5e-3) {
			t.Fatalf("beta[%d] at t=2: got=%v want≈%v", j, beta[j], want)
		}
	}
	if len(sol.SkippedSteps) != 0 || len(sol.RankDeficientSteps) != 0 {
		t.Fatalf("unexpected diagnostics: skipped=%v deficient=%v", sol.SkippedSteps, sol.RankDeficientSteps)
	}
}

func TestSolve_ExerciseBoundary(t *testing.T) {
	batch, _ := NewPathBatch(lsPaperPaths)
	sol, err := NewExerciseBoundarySolver(2).Solve(batch, lsPaperParams())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	b := sol.ExerciseBoundary(batch, 1.10)
	if len(b) != 4 {
		t.Fatalf("boundary length: got=%d", len(b))
	}
	if !math.IsNaN(b[0]) || !math.IsNaN(b[2]) {
		t.Fatalf("expected NaN at t=0 and t=2, got %v", b)
	}
	if !almostEqual(b[1], 0.93, 1e-12) || !almostEqual(b[3], 1.03, 1e-12) {
		t.Fatalf("boundary mismatch: %v", b)
	}
}

func TestSolve_ExerciseTimesValid(t *testing.T) {
	p := smallParams()
	p.Paths = 2000
	batch, err := NewPathSimulator().Simulate(p, rand.New(rand.NewPCG(9, 9)))
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	sol, err := NewExerciseBoundarySolver(2).Solve(batch, p)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	early := 0
	for i, et := range sol.ExerciseTimes {
		if et < 1 || et > p.Steps {
			t.Fatalf("path %d exercise time %d out of range", i, et)
		}
		if et < p.Steps {
			early++
			// 提前行权必须发生在价内
			if batch.At(i, et) >= p.K {
				t.Fatalf("path %d exercised out of the money at t=%d", i, et)
			}
		}
	}
	if early == 0 {
		t.Fatalf("expected some early exercise for an at-the-money put")
	}
	if sol.Price <= 0 {
		t.Fatalf("price should be positive: %v", sol.Price)
	}
}

func TestSolve_ZeroVolatilityZeroRate(t *testing.T) {
	cases := []struct {
		s0, want float64
	}{
		{0.9, 0.1}, {1.0, 0}, {1.2, 0},
	}
	for _, tc := range cases {
		p := smallParams()
		p.Sigma, p.R, p.S0 = 0, 0, tc.s0
		batch, err := NewPathSimulator().Simulate(p, rand.New(rand.NewPCG(1, 1)))
		if err != nil {
			t.Fatalf("simulate: %v", err)
		}
		sol, err := NewExerciseBoundarySolver(2).Solve(batch, p)
		if err != nil {
			t.Fatalf("solve: %v", err)
		}
		if !almostEqual(sol.Price, tc.want, 1e-12) {
			t.Fatalf("s0=%v: got=%v want=%v", tc.s0, sol.Price, tc.want)
		}
	}
}

func TestSolve_RankDeficientDoesNotFail(t *testing.T) {
	// 所有路径完全相同且价内：设计矩阵秩为 1
	p := smallParams()
	p.Sigma, p.R, p.S0 = 0, 0, 0.5
	batch, _ := NewPathSimulator().Simulate(p, rand.New(rand.NewPCG(1, 1)))
	sol, err := NewExerciseBoundarySolver(2).Solve(batch, p)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if len(sol.RankDeficientSteps) != p.Steps-1 {
		t.Fatalf("expected every interior step rank deficient, got %v", sol.RankDeficientSteps)
	}
	if !almostEqual(sol.Price, 0.5, 1e-12) {
		t.Fatalf("price mismatch: got=%v", sol.Price)
	}
}

func TestSolve_SingleITMPath(t *testing.T) {
	batch, _ := NewPathBatch([][]float64{
		{1.0, 1.2, 1.3},
		{1.0, 0.8, 0.7},
		{1.0, 1.5, 1.4},
	})
	p := SimulationParameters{R: 0.05, K: 1.0, Dt: 0.5, Steps: 2, S0: 1, Paths: 3, Repetitions: 1}
	sol, err := NewExerciseBoundarySolver(2).Solve(batch, p)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if len(sol.RankDeficientSteps) != 1 {
		t.Fatalf("a 1x3 design matrix is rank deficient, got %v", sol.RankDeficientSteps)
	}
	if math.IsNaN(sol.Price) || sol.Price < 0 {
		t.Fatalf("invalid price %v", sol.Price)
	}
}

func TestSolve_DeepOutOfTheMoneySkipsRegression(t *testing.T) {
	p := smallParams()
	p.S0 = 100
	batch, err := NewPathSimulator().Simulate(p, rand.New(rand.NewPCG(5, 5)))
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	sol, err := NewExerciseBoundarySolver(2).Solve(batch, p)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Price != 0 {
		t.Fatalf("deep OTM price should be 0, got %v", sol.Price)
	}
	if len(sol.SkippedSteps) != p.Steps-1 {
		t.Fatalf("expected all interior steps skipped, got %v", sol.SkippedSteps)
	}
	for s := 1; s < p.Steps; s++ {
		for _, b := range sol.Betas.Coefficients(s) {
			if b != 0 {
				t.Fatalf("skipped step %d has non-zero beta %v", s, b)
			}
		}
	}
}

func TestSolve_DeepInTheMoney(t *testing.T) {
	p := smallParams()
	p.S0, p.R, p.Sigma = 0.01, 0, 1e-4
	batch, err := NewPathSimulator().Simulate(p, rand.New(rand.NewPCG(5, 5)))
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	sol, err := NewExerciseBoundarySolver(2).Solve(batch, p)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !almostEqual(sol.Price, 0.99, 1e-3) {
		t.Fatalf("deep ITM price: got=%v want≈0.99", sol.Price)
	}
}

func TestSolve_ConfigurableDegree(t *testing.T) {
	p := smallParams()
	batch, _ := NewPathSimulator().Simulate(p, rand.New(rand.NewPCG(2, 2)))
	for _, degree := range []int{1, 2, 3, 4} {
		sol, err := NewExerciseBoundarySolver(degree).Solve(batch, p)
		if err != nil {
			t.Fatalf("degree %d: %v", degree, err)
		}
		if sol.Betas.Terms() != degree+1 {
			t.Fatalf("degree %d: terms=%d", degree, sol.Betas.Terms())
		}
		if sol.Price <= 0 || sol.Price > p.K {
			t.Fatalf("degree %d: implausible price %v", degree, sol.Price)
		}
	}
	if NewExerciseBoundarySolver(0).Degree() != DefaultDegree {
		t.Fatalf("non-positive degree should fall back to default")
	}
}

func TestSolve_SingleStepIsEuropean(t *testing.T) {
	batch, _ := NewPathBatch([][]float64{{1, 0.8}, {1, 1.3}})
	p := SimulationParameters{R: 0.1, K: 1.0, Dt: 1, Steps: 1, S0: 1, Paths: 2, Repetitions: 1}
	sol, err := NewExerciseBoundarySolver(2).Solve(batch, p)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	want := math.Exp(-0.1) * 0.2 / 2
	if !almostEqual(sol.Price, want, 1e-12) {
		t.Fatalf("price: got=%v want=%v", sol.Price, want)
	}
}

func TestSolve_TieKeepsContinuation(t *testing.T) {
	// r=0 时 t=1 唯一价内路径价格为 0：设计行 [1,0,0]，拟合值恰好等于贴现现金流 K
	p := SimulationParameters{R: 0, K: 1, Dt: 1, Steps: 2, S0: 1, Paths: 2, Repetitions: 1}
	tests := []struct {
		name     string
		maturity float64
		want     int
	}{
		{"continuation equals intrinsic", 0, 2},
		{"continuation below intrinsic", 0.5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := NewPathBatch([][]float64{
				{1, 0, tt.maturity},
				{1, 2, 2},
			})
			if err != nil {
				t.Fatalf("batch: %v", err)
			}
			sol, err := NewExerciseBoundarySolver(2).Solve(batch, p)
			if err != nil {
				t.Fatalf("solve: %v", err)
			}
			if sol.ExerciseTimes[0] != tt.want {
				t.Fatalf("exercise time: got=%d want=%d", sol.ExerciseTimes[0], tt.want)
			}
			if sol.ExerciseTimes[1] != p.Steps {
				t.Fatalf("out of the money path exercised at %d", sol.ExerciseTimes[1])
			}
		})
	}
}

func TestSolve_ExerciseTimesOnlyMoveEarlier(t *testing.T) {
	p := smallParams()
	p.Paths = 500
	batch, err := NewPathSimulator().Simulate(p, rand.New(rand.NewPCG(3, 3)))
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	prev := make([]int, p.Paths)
	for i := range prev {
		prev[i] = p.Steps
	}
	steps := 0
	solver := NewExerciseBoundarySolver(2)
	solver.onStep = func(step int, exerciseTime []int) {
		steps++
		for i, et := range exerciseTime {
			if et != prev[i] && et != step {
				t.Errorf("t=%d path %d: exercise time moved %d -> %d", step, i, prev[i], et)
			}
			if et > prev[i] {
				t.Errorf("t=%d path %d: exercise time moved later %d -> %d", step, i, prev[i], et)
			}
		}
		copy(prev, exerciseTime)
	}
	sol, err := solver.Solve(batch, p)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if steps != p.Steps-1 {
		t.Fatalf("observed %d backward steps, want %d", steps, p.Steps-1)
	}
	for i, et := range sol.ExerciseTimes {
		if et != prev[i] {
			t.Fatalf("path %d: final exercise time %d differs from last step %d", i, et, prev[i])
		}
	}
}

func TestSolve_DiscountOverflow(t *testing.T) {
	// r=-100, dt=1：贴现因子 e^100，回溯 8 步后现金流溢出
	p := smallParams()
	p.R = -100
	p.Dt = 1
	if err := p.Validate(); err != nil {
		t.Fatalf("parameters should pass validation: %v", err)
	}
	batch, err := NewPathSimulator().Simulate(p, rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	sol, err := NewExerciseBoundarySolver(2).Solve(batch, p)
	if !errors.Is(err, ErrNumericalOverflow) {
		t.Fatalf("expected ErrNumericalOverflow, got %v", err)
	}
	if sol != nil {
		t.Fatalf("overflowed solve returned a solution: %+v", sol)
	}
}
