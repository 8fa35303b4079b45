package application

import (
	"context"
	"errors"

	"github.com/wyfcoding/lsmc/internal/pricing/domain"
)

// 历史查询条数限制
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 500
)

// ErrHistoryDisabled 未配置仓储时查询历史
var ErrHistoryDisabled = errors.New("pricing history is not enabled")

// PricingQueryService 处理所有定价相关的查询操作（Queries）。
type PricingQueryService struct {
	repo domain.PricingRepository
}

// NewPricingQueryService 构造函数。repo 可为 nil
func NewPricingQueryService(repo domain.PricingRepository) *PricingQueryService {
	return &PricingQueryService{
		repo: repo,
	}
}

// GetLatest 获取标的最新定价结果，不存在时返回 (nil, nil)
func (s *PricingQueryService) GetLatest(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	return s.repo.GetLatest(ctx, symbol)
}

// GetHistory 按时间倒序获取定价历史
func (s *PricingQueryService) GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.PricingResult, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	return s.repo.GetHistory(ctx, symbol, limit)
}
