package infrastructure

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/cryptocustody/internal/pricing/domain"
	"github.com/wyfcoding/cryptocustody/pkg/cache"
	"github.com/wyfcoding/cryptocustody/pkg/logger"
)

const priceKeyPrefix = "price:"

// CachedOracle Redis 读穿透缓存装饰器
// 缓存命中直接返回；未命中或 Redis 故障时回源到内层价格源，缓存写入为尽力而为。
type CachedOracle struct {
	inner domain.Oracle
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewCachedOracle 创建带缓存的价格源
func NewCachedOracle(inner domain.Oracle, rc *cache.RedisCache, ttl time.Duration) *CachedOracle {
	return &CachedOracle{inner: inner, cache: rc, ttl: ttl}
}

// CurrentPrice 获取资产当前单价，优先读缓存
func (o *CachedOracle) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := priceKeyPrefix + symbol

	var cached decimal.Decimal
	found, err := o.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		logger.Warn(ctx, "Price cache read failed, falling through", "symbol", symbol, "error", err)
	} else if found {
		return cached, nil
	}

	price, err := o.inner.CurrentPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	if err := o.cache.SetJSON(ctx, key, price, o.ttl); err != nil {
		logger.Warn(ctx, "Price cache write failed", "symbol", symbol, "error", err)
	}
	return price, nil
}

// Snapshot 获取全部资产的报价，直接回源
func (o *CachedOracle) Snapshot(ctx context.Context) ([]domain.Quote, error) {
	return o.inner.Snapshot(ctx)
}
