package domain

import "context"

// PricingRepository 定价历史仓储接口
type PricingRepository interface {
	Save(ctx context.Context, result *PricingResult) error
	GetLatest(ctx context.Context, symbol string) (*PricingResult, error)
	GetHistory(ctx context.Context, symbol string, limit int) ([]*PricingResult, error)
	// WithTx 在事务中执行 fn，fn 内使用 txCtx 的写入随 fn 的返回值一起提交或回滚
	WithTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// ResultCache 固定种子运行的结果缓存，未命中返回 (nil, nil)
type ResultCache interface {
	Get(ctx context.Context, key string) (*PricingResult, error)
	Set(ctx context.Context, key string, result *PricingResult) error
}
