package order

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
	REDIS_ORDER_STATUS_TTL = 24 * time.Hour
	REDIS_RECENT_ORDERS    = 1000
)

// RedisOrderStatusWriter 保存每个订单的最新事件, 终态订单进入 recent zset
type RedisOrderStatusWriter struct {
	redis *redis.Client
	tl    *zap.Logger
}

func NewRedisOrderStatusWriter(rdb *redis.Client, tl *zap.Logger) writer.BatchWriter[model.OrderEvent] {
	return &RedisOrderStatusWriter{redis: rdb, tl: tl}
}

func (w *RedisOrderStatusWriter) BWrite(ctx context.Context, events []model.OrderEvent) error {
	if len(events) == 0 {
		return nil
	}

	snapshots := make(map[string][]byte, len(events))
	var recent []redis.Z
	for _, ev := range events {
		data, err := sonic.Marshal(ev)
		if err != nil {
			w.tl.Warn("marshal order event failed", zap.String("order_id", ev.OrderID), zap.Error(err))
			continue
		}
		snapshots[ev.OrderID] = data
		if ev.Terminal() {
			recent = append(recent, recentMember(ev))
		}
	}

	recentKey := utils.RecentOrdersKey()
	fill := func(pipe redis.Pipeliner) error {
		for id, data := range snapshots {
			pipe.Set(ctx, utils.OrderStatusKey(id), data, REDIS_ORDER_STATUS_TTL)
		}
		if len(recent) > 0 {
			pipe.ZAdd(ctx, recentKey, recent...)
			// 只保留最近 N 条
			pipe.ZRemRangeByRank(ctx, recentKey, 0, -REDIS_RECENT_ORDERS-1)
			pipe.Expire(ctx, recentKey, REDIS_ORDER_STATUS_TTL)
		}
		return nil
	}

	// Pipelined 每次重新填充命令, 失败后整体重试
	var err error
	for attempt := 0; attempt < RETRY_COUNT; attempt++ {
		_, err = w.redis.Pipelined(ctx, fill)
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

func recentMember(ev model.OrderEvent) redis.Z {
	return redis.Z{
		Score:  float64(ev.Timestamp.UnixMilli()),
		Member: ev.OrderID,
	}
}

func (w *RedisOrderStatusWriter) Close() error {
	return nil
}
