package domain

import "context"

// EventPublisher 事件发布者接口
type EventPublisher interface {
	// PublishOptionPriced 发布期权定价完成事件
	PublishOptionPriced(ctx context.Context, event OptionPricedEvent) error

	// PublishPricingError 发布定价错误事件
	PublishPricingError(ctx context.Context, event PricingErrorEvent) error
}

// TransactionalEventPublisher 事件写入与定价结果共享仓储事务 (outbox)
// txCtx 须来自 PricingRepository.WithTx，写入失败时定价结果随事务回滚
type TransactionalEventPublisher interface {
	EventPublisher
	PublishOptionPricedInTx(txCtx context.Context, event OptionPricedEvent) error
}
