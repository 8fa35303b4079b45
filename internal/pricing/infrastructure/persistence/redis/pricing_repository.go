package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/lsmc/internal/pricing/domain"
)

// JSONStore Redis JSON 读写，*cache.RedisCache 满足该接口
type JSONStore interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, expiration time.Duration) error
}

// PricingResultCache 固定种子运行的结果缓存
type PricingResultCache struct {
	store        JSONStore
	resultPrefix string
	ttl          time.Duration
}

// NewPricingResultCache ttl<=0 时使用 15 分钟
func NewPricingResultCache(store JSONStore, ttl time.Duration) *PricingResultCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &PricingResultCache{
		store:        store,
		resultPrefix: "pricing_result:",
		ttl:          ttl,
	}
}

func (c *PricingResultCache) Get(ctx context.Context, key string) (*domain.PricingResult, error) {
	if key == "" {
		return nil, nil
	}
	var result domain.PricingResult
	ok, err := c.store.GetJSON(ctx, c.resultKey(key), &result)
	if err != nil || !ok {
		return nil, err
	}
	return &result, nil
}

func (c *PricingResultCache) Set(ctx context.Context, key string, result *domain.PricingResult) error {
	if key == "" || result == nil {
		return nil
	}
	return c.store.SetJSON(ctx, c.resultKey(key), result, c.ttl)
}

func (c *PricingResultCache) resultKey(key string) string {
	return fmt.Sprintf("%s%s", c.resultPrefix, key)
}
