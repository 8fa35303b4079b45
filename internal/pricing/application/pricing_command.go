package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/lsmc/internal/pricing/domain"
	"github.com/wyfcoding/lsmc/pkg/logger"
	"github.com/wyfcoding/lsmc/pkg/metrics"
)

// 定价错误码，用于错误事件与 HTTP 响应
const (
	ErrorCodeInvalidConfiguration = "INVALID_CONFIGURATION"
	ErrorCodeNumericalOverflow    = "NUMERICAL_OVERFLOW"
	ErrorCodeCanceled             = "CANCELED"
	ErrorCodeInternal             = "INTERNAL"
)

// ErrorCode 把错误映射为错误码
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidConfiguration):
		return ErrorCodeInvalidConfiguration
	case errors.Is(err, domain.ErrNumericalOverflow):
		return ErrorCodeNumericalOverflow
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeCanceled
	default:
		return ErrorCodeInternal
	}
}

// PricingCommandService 处理定价相关的命令操作
// 仓储、缓存、事件发布与指标均为可选依赖
type PricingCommandService struct {
	repo      domain.PricingRepository
	cache     domain.ResultCache
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

// CommandOption 配置 PricingCommandService
type CommandOption func(*PricingCommandService)

// WithRepository 保存每次定价结果
func WithRepository(repo domain.PricingRepository) CommandOption {
	return func(c *PricingCommandService) { c.repo = repo }
}

// WithResultCache 缓存固定种子运行的结果
func WithResultCache(cache domain.ResultCache) CommandOption {
	return func(c *PricingCommandService) { c.cache = cache }
}

// WithEventPublisher 发布定价完成与定价失败事件
func WithEventPublisher(publisher domain.EventPublisher) CommandOption {
	return func(c *PricingCommandService) { c.publisher = publisher }
}

// WithMetrics 记录运行与重复指标
func WithMetrics(m *metrics.Metrics) CommandOption {
	return func(c *PricingCommandService) { c.metrics = m }
}

// NewPricingCommandService 创建新的 PricingCommandService 实例
func NewPricingCommandService(opts ...CommandOption) *PricingCommandService {
	c := &PricingCommandService{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PriceAmericanPut 运行 LSMC 定价
func (c *PricingCommandService) PriceAmericanPut(ctx context.Context, cmd PriceAmericanPutCommand) (*domain.PricingResult, error) {
	if cmd.Symbol == "" {
		cmd.Symbol = DefaultSymbol
	}
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	params := cmd.Params

	if err := params.Validate(); err != nil {
		c.fail(ctx, runID, cmd, err)
		return nil, err
	}

	var key string
	if cmd.UseCache && c.cache != nil {
		key = CacheKey(cmd.Symbol, params)
	}
	if key != "" {
		cached, err := c.cache.Get(ctx, key)
		if err != nil {
			logger.Warn(ctx, "pricing cache lookup failed", "key", key, "error", err)
		} else if cached != nil {
			if c.metrics != nil {
				c.metrics.RunsTotal.WithLabelValues(metrics.StatusCached).Inc()
			}
			logger.Info(ctx, "pricing served from cache", "key", key, "cached_run_id", cached.RunID)
			return cached, nil
		}
	}

	start := c.now()
	aggregator := domain.NewRepetitionAggregator(domain.WithRepetitionObserver(c.observeRepetition(ctx)))
	agg, err := aggregator.Run(ctx, params)
	if err != nil {
		c.fail(ctx, runID, cmd, err)
		return nil, err
	}
	elapsed := c.now().Sub(start)

	result, err := c.buildResult(runID, cmd.Symbol, params, agg, elapsed)
	if err != nil {
		c.fail(ctx, runID, cmd, err)
		return nil, err
	}

	event := domain.OptionPricedEvent{
		RunID:           runID,
		Symbol:          cmd.Symbol,
		OptionType:      domain.OptionTypePut,
		StrikePrice:     params.K,
		Maturity:        params.Maturity(),
		OptionPrice:     agg.Mean,
		StdDev:          agg.StdDev,
		UnderlyingPrice: params.S0,
		Volatility:      params.Sigma,
		RiskFreeRate:    params.R,
		Repetitions:     params.Repetitions,
		Paths:           params.Paths,
		PricingModel:    domain.PricingModelLSMC,
		CalculatedAt:    result.CalculatedAt,
		OccurredOn:      c.now(),
	}

	published := false
	if c.repo != nil {
		txPublisher, transactional := c.publisher.(domain.TransactionalEventPublisher)
		// 结果与 outbox 事件在同一事务中写入，任一失败则整体回滚
		err := c.repo.WithTx(ctx, func(txCtx context.Context) error {
			if err := c.repo.Save(txCtx, result); err != nil {
				return fmt.Errorf("failed to save pricing result: %w", err)
			}
			if transactional {
				if err := txPublisher.PublishOptionPricedInTx(txCtx, event); err != nil {
					return fmt.Errorf("failed to write option priced event: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			c.fail(ctx, runID, cmd, err)
			return nil, err
		}
		published = transactional
	}

	if c.publisher != nil && !published {
		if err := c.publisher.PublishOptionPriced(ctx, event); err != nil {
			logger.Error(ctx, "failed to publish option priced event", "error", err)
		}
	}

	if key != "" {
		if err := c.cache.Set(ctx, key, result); err != nil {
			logger.Warn(ctx, "pricing cache store failed", "key", key, "error", err)
		}
	}

	if c.metrics != nil {
		c.metrics.ObserveRun(metrics.StatusSuccess, elapsed, agg.Mean, agg.StdDev)
	}
	logger.Info(ctx, "american put priced",
		"symbol", cmd.Symbol,
		"price", agg.Mean,
		"std_dev", agg.StdDev,
		"repetitions", params.Repetitions,
		"paths", params.Paths,
		"seed", agg.Seed,
		"duration", elapsed,
	)
	return result, nil
}

func (c *PricingCommandService) observeRepetition(ctx context.Context) func(domain.RepetitionReport) {
	return func(r domain.RepetitionReport) {
		if c.metrics != nil {
			c.metrics.ObserveRepetition(r.Elapsed, r.SkippedSteps, r.RankDeficientSteps)
		}
		logger.Debug(ctx, "repetition finished",
			"repetition", r.Repetition,
			"price", r.Price,
			"elapsed", r.Elapsed,
			"skipped_steps", r.SkippedSteps,
			"rank_deficient_steps", r.RankDeficientSteps,
		)
	}
}

// buildResult 组装持久化结果；decimal 不能表示 Inf/NaN，非有限值返回 ErrNumericalOverflow
func (c *PricingCommandService) buildResult(runID, symbol string, p domain.SimulationParameters, agg *domain.AggregateResult, elapsed time.Duration) (*domain.PricingResult, error) {
	european, err := domain.EuropeanPutPrice(p)
	if err != nil {
		return nil, err
	}
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"price", agg.Mean}, {"std_dev", agg.StdDev}, {"std_err", agg.StdErr},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return nil, fmt.Errorf("aggregate %s %v: %w", v.name, v.value, domain.ErrNumericalOverflow)
		}
	}
	now := c.now()
	return &domain.PricingResult{
		RunID:           runID,
		Symbol:          symbol,
		OptionType:      domain.OptionTypePut,
		PricingModel:    domain.PricingModelLSMC,
		OptionPrice:     decimal.NewFromFloat(agg.Mean),
		StdDev:          decimal.NewFromFloat(agg.StdDev),
		StdErr:          decimal.NewFromFloat(agg.StdErr),
		EuropeanPrice:   decimal.NewFromFloat(european),
		UnderlyingPrice: decimal.NewFromFloat(p.S0),
		StrikePrice:     decimal.NewFromFloat(p.K),
		Volatility:      p.Sigma,
		RiskFreeRate:    p.R,
		TimeStep:        p.Dt,
		Steps:           p.Steps,
		Paths:           p.Paths,
		Repetitions:     p.Repetitions,
		Degree:          p.BasisSize() - 1,
		Seed:            agg.Seed,
		DurationMs:      elapsed.Milliseconds(),
		CalculatedAt:    now.Unix(),
	}, nil
}

// fail 记录失败指标与日志，并发布错误事件
func (c *PricingCommandService) fail(ctx context.Context, runID string, cmd PriceAmericanPutCommand, err error) {
	code := ErrorCode(err)
	if c.metrics != nil {
		c.metrics.ObserveRun(metrics.StatusFailed, 0, 0, 0)
	}
	logger.Error(ctx, "american put pricing failed", "symbol", cmd.Symbol, "code", code, "error", err)

	if c.publisher == nil {
		return
	}
	now := c.now()
	event := domain.PricingErrorEvent{
		RunID:       runID,
		Symbol:      cmd.Symbol,
		OptionType:  domain.OptionTypePut,
		StrikePrice: cmd.Params.K,
		Maturity:    cmd.Params.Maturity(),
		Error:       err.Error(),
		ErrorCode:   code,
		OccurredAt:  now.Unix(),
		OccurredOn:  now,
	}
	// 取消时原 ctx 已失效，错误事件用独立的 ctx 发布
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if perr := c.publisher.PublishPricingError(pubCtx, event); perr != nil {
		logger.Error(ctx, "failed to publish pricing error event", "error", perr)
	}
}
