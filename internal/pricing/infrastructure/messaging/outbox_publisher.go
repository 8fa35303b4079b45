package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wyfcoding/lsmc/internal/pricing/domain"
	"github.com/wyfcoding/lsmc/pkg/db"
	"github.com/wyfcoding/lsmc/pkg/logger"
	"github.com/wyfcoding/lsmc/pkg/mq"
)

// Outbox 消息状态
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// maxDeliveryAttempts 超过后消息标记为 failed，不再重试
const maxDeliveryAttempts = 5

// 已投递消息的保留时间与清理周期
const (
	sentRetention   = 24 * time.Hour
	cleanupInterval = time.Hour
)

// OutboxMessage 待投递的领域事件
type OutboxMessage struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	EventID   string    `gorm:"type:char(36);index"`
	EventType string    `gorm:"type:varchar(100);index"`
	Key       string    `gorm:"type:varchar(64)"`
	Payload   string    `gorm:"type:text"`
	Status    string    `gorm:"type:varchar(20);index;default:'pending'"`
	Attempts  int       `gorm:"default:0"`
	LastError string    `gorm:"type:varchar(512)"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName 指定表名
func (OutboxMessage) TableName() string {
	return "pricing_outbox_messages"
}

// OutboxEventPublisher 实现 EventPublisher 接口，使用 Outbox 模式
// 事件先写入数据库，再由 ProcessOutboxMessages 投递到 Kafka
type OutboxEventPublisher struct {
	db *gorm.DB
}

var _ domain.TransactionalEventPublisher = (*OutboxEventPublisher)(nil)

// errNoTransaction 事务内发布却没有事务句柄
var errNoTransaction = errors.New("outbox: transaction required")

// NewOutboxEventPublisher 创建新的 OutboxEventPublisher 实例
func NewOutboxEventPublisher(db *gorm.DB) *OutboxEventPublisher {
	return &OutboxEventPublisher{db: db}
}

// AutoMigrate 创建 outbox 表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&OutboxMessage{})
}

// PublishOptionPriced 发布期权定价完成事件
func (p *OutboxEventPublisher) PublishOptionPriced(ctx context.Context, event domain.OptionPricedEvent) error {
	return p.publishEvent(ctx, domain.OptionPricedEventType, event.Symbol, event)
}

// PublishPricingError 发布定价错误事件
func (p *OutboxEventPublisher) PublishPricingError(ctx context.Context, event domain.PricingErrorEvent) error {
	return p.publishEvent(ctx, domain.PricingErrorEventType, event.Symbol, event)
}

// PublishOptionPricedInTx 在仓储事务中写入定价完成事件，与定价结果一同提交
func (p *OutboxEventPublisher) PublishOptionPricedInTx(txCtx context.Context, event domain.OptionPricedEvent) error {
	return p.PublishInTx(txCtx, db.TxFromContext(txCtx), domain.OptionPricedEventType, event.Symbol, event)
}

// PublishInTx 在调用方的事务 tx 中写入一条 outbox 消息
func (p *OutboxEventPublisher) PublishInTx(ctx context.Context, tx *gorm.DB, eventType, key string, event any) error {
	if tx == nil {
		return errNoTransaction
	}
	message, err := newOutboxMessage(eventType, key, event, time.Now())
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).Create(message).Error
}

// publishEvent ctx 带事务时加入该事务，否则单独写入
func (p *OutboxEventPublisher) publishEvent(ctx context.Context, eventType, key string, event any) error {
	message, err := newOutboxMessage(eventType, key, event, time.Now())
	if err != nil {
		return err
	}
	return db.Conn(ctx, p.db).Create(message).Error
}

func newOutboxMessage(eventType, key string, event any, now time.Time) (*OutboxMessage, error) {
	eventData, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		ID:        uuid.NewString(),
		EventID:   uuid.NewString(),
		EventType: eventType,
		Key:       key,
		Payload:   string(eventData),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// toKafkaMessage payload 已是 JSON，原样投递
func toKafkaMessage(m *OutboxMessage) mq.Message {
	return mq.Message{
		Key:   m.Key,
		Value: []byte(m.Payload),
		Headers: map[string]string{
			"event_id":   m.EventID,
			"event_type": m.EventType,
		},
	}
}

// ProcessOutboxMessages 按创建顺序投递一批待处理消息，返回成功条数
func (p *OutboxEventPublisher) ProcessOutboxMessages(ctx context.Context, sender MessageSender, topic string, batchSize int) (int, error) {
	var messages []OutboxMessage
	if err := p.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order("created_at asc").
		Limit(batchSize).
		Find(&messages).Error; err != nil {
		return 0, err
	}

	sent := 0
	for i := range messages {
		message := &messages[i]
		if err := sender.SendMessages(ctx, topic, toKafkaMessage(message)); err != nil {
			attempts := message.Attempts + 1
			status := StatusPending
			if attempts >= maxDeliveryAttempts {
				status = StatusFailed
			}
			logger.Warn(ctx, "outbox delivery failed", "event_id", message.EventID, "attempts", attempts, "error", err)
			if uerr := p.db.WithContext(ctx).Model(message).Updates(map[string]any{
				"status":     status,
				"attempts":   attempts,
				"last_error": truncate(err.Error(), 512),
			}).Error; uerr != nil {
				return sent, uerr
			}
			// 保持顺序：前一条失败时不投递后续消息
			return sent, err
		}
		if err := p.db.WithContext(ctx).Model(message).Update("status", StatusSent).Error; err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// RunRelay 周期性投递 outbox 消息，直到 ctx 结束
func (p *OutboxEventPublisher) RunRelay(ctx context.Context, sender MessageSender, topic string, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-cleanup.C:
			if err := p.CleanupProcessedMessages(ctx, now.Add(-sentRetention)); err != nil && ctx.Err() == nil {
				logger.Warn(ctx, "outbox cleanup failed", "error", err)
			}
		case <-ticker.C:
			n, err := p.ProcessOutboxMessages(ctx, sender, topic, batchSize)
			if err != nil && ctx.Err() == nil {
				logger.Error(ctx, "outbox relay failed", "error", err)
			}
			if n > 0 {
				logger.Debug(ctx, "outbox messages relayed", "count", n)
			}
		}
	}
}

// CleanupProcessedMessages 清理已处理的消息
func (p *OutboxEventPublisher) CleanupProcessedMessages(ctx context.Context, before time.Time) error {
	return p.db.WithContext(ctx).Where("status = ? AND updated_at < ?", StatusSent, before).Delete(&OutboxMessage{}).Error
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
