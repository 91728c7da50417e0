package price

import (
	"context"
	"time"

	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/writer"
	"cryptojackal/pkg/utils"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	REDIS_LATEST_PRICE_TTL = 10 * time.Minute
)

// RedisLatestPriceWriter 每个 token 只保留最新一次聚合结果
type RedisLatestPriceWriter struct {
	redis   *redis.Client
	tl      *zap.Logger
	chainID int64
}

func NewRedisLatestPriceWriter(rdb *redis.Client, tl *zap.Logger, chainID int64) writer.BatchWriter[model.AggregatedPrice] {
	return &RedisLatestPriceWriter{redis: rdb, tl: tl, chainID: chainID}
}

func (w *RedisLatestPriceWriter) BWrite(ctx context.Context, prices []model.AggregatedPrice) error {
	latest := latestByToken(prices)
	if len(latest) == 0 {
		return nil
	}

	values := make(map[string][]byte, len(latest))
	for token, p := range latest {
		data, err := sonic.Marshal(p)
		if err != nil {
			w.tl.Warn("marshal price failed", zap.String("token", token), zap.Error(err))
			continue
		}
		values[utils.LatestPriceKey(w.chainID, token)] = data
	}

	var err error
	for attempt := 0; attempt < RETRY_COUNT; attempt++ {
		_, err = w.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for key, data := range values {
				pipe.Set(ctx, key, data, REDIS_LATEST_PRICE_TTL)
			}
			return nil
		})
		if err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		w.tl.Warn("❌ Redis pipeline exec failed, exceeded the maximum number of retries", zap.Error(err))
		return err
	}
	return nil
}

func (w *RedisLatestPriceWriter) Close() error {
	return nil
}

// latestByToken 同一批内同一 token 取时间戳最新的一条
func latestByToken(prices []model.AggregatedPrice) map[string]model.AggregatedPrice {
	out := make(map[string]model.AggregatedPrice, len(prices))
	for _, p := range prices {
		if cur, ok := out[p.TokenAddress]; ok && cur.Timestamp.After(p.Timestamp) {
			continue
		}
		out[p.TokenAddress] = p
	}
	return out
}
