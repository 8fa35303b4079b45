// Package bootstrap 按配置组装定价服务的基础设施：MySQL 仓储、Redis 结果缓存、Kafka/Outbox 事件发布
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/lsmc/internal/pricing/application"
	"github.com/wyfcoding/lsmc/internal/pricing/domain"
	"github.com/wyfcoding/lsmc/internal/pricing/infrastructure/messaging"
	"github.com/wyfcoding/lsmc/internal/pricing/infrastructure/persistence/mysql"
	"github.com/wyfcoding/lsmc/internal/pricing/infrastructure/persistence/redis"
	"github.com/wyfcoding/lsmc/pkg/cache"
	"github.com/wyfcoding/lsmc/pkg/config"
	"github.com/wyfcoding/lsmc/pkg/db"
	"github.com/wyfcoding/lsmc/pkg/logger"
	"github.com/wyfcoding/lsmc/pkg/metrics"
	"github.com/wyfcoding/lsmc/pkg/mq"
	"github.com/wyfcoding/lsmc/pkg/ratelimit"
)

// outbox 投递参数
const (
	relayInterval  = time.Second
	relayBatchSize = 100
)

// Components 组装结果
type Components struct {
	Service *application.PricingService
	// 启用 Redis 时为多实例共享的限流器，否则为进程内令牌桶
	RateLimiter ratelimit.RateLimiter

	closers []func() error
}

// Close 逆序关闭所有连接并停止 outbox relay
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			logger.Warn(context.Background(), "failed to close resource", "error", err)
		}
	}
	c.closers = nil
}

// Build 按配置组装 PricingService
// 未启用的组件保持为 nil，服务在纯内存模式下仍可定价；出错时已打开的连接会被关闭
func Build(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Components, error) {
	c := &Components{RateLimiter: ratelimit.NewMemoryRateLimiter()}

	var (
		repo      domain.PricingRepository
		database  *db.DB
		publisher domain.EventPublisher
		opts      []application.CommandOption
	)
	if m != nil {
		opts = append(opts, application.WithMetrics(m))
	}

	if cfg.Database.Enabled {
		d, err := db.Init(db.Config{
			Driver:             cfg.Database.Driver,
			DSN:                cfg.Database.DSN,
			MaxOpenConns:       cfg.Database.MaxOpenConns,
			MaxIdleConns:       cfg.Database.MaxIdleConns,
			ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
			LogEnabled:         cfg.Database.LogEnabled,
			SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, d.Close)
		if cfg.Database.AutoMigrate {
			if err := mysql.AutoMigrate(d.DB); err != nil {
				c.Close()
				return nil, fmt.Errorf("failed to migrate pricing results: %w", err)
			}
			if err := messaging.AutoMigrate(d.DB); err != nil {
				c.Close()
				return nil, fmt.Errorf("failed to migrate outbox: %w", err)
			}
		}
		database = d
		repo = mysql.NewPricingRepository(d.DB)
	}

	if cfg.Redis.Enabled {
		rc, err := cache.New(cache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxPoolSize:  cfg.Redis.MaxPoolSize,
			ConnTimeout:  cfg.Redis.ConnTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, rc.Close)
		c.RateLimiter = ratelimit.NewRedisRateLimiter(rc.Client())
		ttl := time.Duration(cfg.Redis.ResultTTL) * time.Second
		opts = append(opts, application.WithResultCache(redis.NewPricingResultCache(rc, ttl)))
	}

	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, producer.Close)

		if database != nil {
			// 有数据库时走 outbox，由后台 relay 投递
			outbox := messaging.NewOutboxEventPublisher(database.DB)
			relayCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			done := make(chan struct{})
			go func() {
				defer close(done)
				outbox.RunRelay(relayCtx, producer, cfg.Kafka.Topic, relayInterval, relayBatchSize)
			}()
			c.closers = append(c.closers, func() error {
				cancel()
				<-done
				return nil
			})
			publisher = outbox
		} else {
			publisher = messaging.NewKafkaEventPublisher(producer, cfg.Kafka.Topic)
		}
	}
	if publisher != nil {
		opts = append(opts, application.WithEventPublisher(publisher))
	}

	logger.Info(ctx, "pricing service assembled",
		"database", cfg.Database.Enabled,
		"redis", cfg.Redis.Enabled,
		"kafka", cfg.Kafka.Enabled,
	)
	c.Service = application.NewPricingService(repo, opts...)
	return c, nil
}
