package application

import (
	"context"

	"github.com/wyfcoding/lsmc/internal/pricing/domain"
)

// PricingService 定价门面服务。
type PricingService struct {
	Command *PricingCommandService
	Query   *PricingQueryService
}

// NewPricingService 构造函数。repo 同时供命令与查询使用
func NewPricingService(repo domain.PricingRepository, opts ...CommandOption) *PricingService {
	if repo != nil {
		opts = append([]CommandOption{WithRepository(repo)}, opts...)
	}
	return &PricingService{
		Command: NewPricingCommandService(opts...),
		Query:   NewPricingQueryService(repo),
	}
}

// --- Command Facade ---

func (s *PricingService) PriceAmericanPut(ctx context.Context, cmd PriceAmericanPutCommand) (*domain.PricingResult, error) {
	return s.Command.PriceAmericanPut(ctx, cmd)
}

// --- Query Facade ---

func (s *PricingService) GetLatest(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	return s.Query.GetLatest(ctx, symbol)
}

func (s *PricingService) GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.PricingResult, error) {
	return s.Query.GetHistory(ctx, symbol, limit)
}
