package messaging

import (
	"context"

	"github.com/google/uuid"

	"github.com/wyfcoding/lsmc/internal/pricing/domain"
	"github.com/wyfcoding/lsmc/pkg/mq"
)

// MessageSender 消息发送方，*mq.KafkaProducer 满足该接口
type MessageSender interface {
	SendMessages(ctx context.Context, topic string, messages ...mq.Message) error
}

// KafkaEventPublisher 直接把事件写入 Kafka，未启用数据库时使用
type KafkaEventPublisher struct {
	sender MessageSender
	topic  string
}

// NewKafkaEventPublisher 创建 Kafka 事件发布者
func NewKafkaEventPublisher(sender MessageSender, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{sender: sender, topic: topic}
}

// PublishOptionPriced 发布期权定价完成事件
func (p *KafkaEventPublisher) PublishOptionPriced(ctx context.Context, event domain.OptionPricedEvent) error {
	return p.publish(ctx, domain.OptionPricedEventType, event.Symbol, event)
}

// PublishPricingError 发布定价错误事件
func (p *KafkaEventPublisher) PublishPricingError(ctx context.Context, event domain.PricingErrorEvent) error {
	return p.publish(ctx, domain.PricingErrorEventType, event.Symbol, event)
}

func (p *KafkaEventPublisher) publish(ctx context.Context, eventType, key string, event any) error {
	return p.sender.SendMessages(ctx, p.topic, mq.Message{
		Key:   key,
		Value: event,
		Headers: map[string]string{
			"event_id":   uuid.NewString(),
			"event_type": eventType,
		},
	})
}
