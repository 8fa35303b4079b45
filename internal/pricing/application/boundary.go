package application

import (
	"math/rand/v2"
	"time"

	"github.com/wyfcoding/lsmc/internal/pricing/domain"
)

// EstimateExerciseBoundary 用第一次重复的路径估计行权边界
// 随机流与聚合器第一次重复一致：Workers<=1 为 (seed, 0)，Workers>1 为 (seed, 1)
// 未固定种子时边界与定价结果不对应，调用方应先用结果中的种子 WithSeed
func EstimateExerciseBoundary(params domain.SimulationParameters) ([]float64, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	seed := uint64(time.Now().UnixNano())
	if params.Seed != nil {
		seed = *params.Seed
	}
	var stream uint64
	if params.Workers > 1 {
		stream = 1
	}
	rng := rand.New(rand.NewPCG(seed, stream))
	batch, err := domain.NewPathSimulator().Simulate(params, rng)
	if err != nil {
		return nil, err
	}
	sol, err := domain.NewExerciseBoundarySolver(params.Degree).Solve(batch, params)
	if err != nil {
		return nil, err
	}
	return sol.ExerciseBoundary(batch, params.K), nil
}
