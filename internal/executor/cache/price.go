package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"cryptojackal/internal/executor/model"
	"cryptojackal/pkg/utils"

	"github.com/bytedance/sonic"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	PRICE_CACHE_TTL = 5 * time.Second // 本地缓存过期时间
)

// PriceCache 读取其他实例写入 redis 的最新价格, 聚合器本地没有时兜底
type PriceCache struct {
	tl         *zap.Logger
	localCache *cache.Cache
	redis      *redis.Client
	chainID    int64
}

func NewPriceCache(tl *zap.Logger, rdb *redis.Client, chainID int64) *PriceCache {
	return &PriceCache{
		tl:         tl.Named("price_cache"),
		localCache: cache.New(PRICE_CACHE_TTL, time.Minute),
		redis:      rdb,
		chainID:    chainID,
	}
}

func (c *PriceCache) Get(ctx context.Context, token string) (model.AggregatedPrice, bool) {
	key := utils.LatestPriceKey(c.chainID, token)
	if cached, found := c.localCache.Get(key); found {
		if price, ok := cached.(model.AggregatedPrice); ok {
			return price, true
		}
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.tl.Warn("read latest price failed", zap.String("token", token), zap.Error(err))
		}
		return model.AggregatedPrice{}, false
	}

	var price model.AggregatedPrice
	if err := sonic.Unmarshal(data, &price); err != nil {
		c.tl.Warn("decode latest price failed", zap.String("token", token), zap.Error(err))
		return model.AggregatedPrice{}, false
	}
	if !strings.EqualFold(price.TokenAddress, token) {
		return model.AggregatedPrice{}, false
	}
	c.localCache.Set(key, price, cache.DefaultExpiration)
	return price, true
}
