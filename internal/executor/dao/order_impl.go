package dao

import (
	"context"
	"errors"
	"time"

	"cryptojackal/internal/executor/model"
	"cryptojackal/pkg/utils"

	"github.com/bytedance/sonic"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	ORDER_NULL_TTL   = time.Minute
	ORDER_CACHE_TTL  = 30 * time.Minute
	DELETE_BATCH_MAX = 5000
)

type orderDAO struct {
	db         *gorm.DB
	rds        *redis.Client
	localCache *cache.Cache
}

func NewOrderDAO(db *gorm.DB, rds *redis.Client) OrderDAO {
	return &orderDAO{
		db:         db,
		rds:        rds,
		localCache: cache.New(time.Minute, time.Minute),
	}
}

func (d *orderDAO) GetOrderEvent(ctx context.Context, orderID string) (*model.OrderEvent, error) {
	cacheKey := utils.OrderStatusKey(orderID)

	// 先查本地缓存, 只缓存终态
	if cached, found := d.localCache.Get(cacheKey); found {
		if ev, ok := cached.(*model.OrderEvent); ok {
			return ev, nil
		}
	}

	// 再查Redis
	cached, err := d.rds.Get(ctx, cacheKey).Result()
	if err == nil {
		if cached == "null" {
			return nil, nil
		}
		var ev model.OrderEvent
		if sonic.Unmarshal([]byte(cached), &ev) == nil {
			if ev.Terminal() {
				d.localCache.Set(cacheKey, &ev, cache.DefaultExpiration)
			}
			return &ev, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	if d.db == nil {
		return nil, nil
	}

	// 查数据库
	var row model.ExecutedOrder
	err = d.db.WithContext(ctx).Where("order_id = ?", orderID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 缓存空结果，避免缓存穿透
			d.rds.Set(ctx, cacheKey, "null", ORDER_NULL_TTL)
			return nil, nil
		}
		return nil, err
	}

	ev := row.Event()
	d.localCache.Set(cacheKey, &ev, cache.DefaultExpiration)
	if data, err := sonic.Marshal(ev); err == nil {
		d.rds.Set(ctx, cacheKey, data, ORDER_CACHE_TTL)
	}
	return &ev, nil
}

func (d *orderDAO) RecentOrderIDs(ctx context.Context, limit int64) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	return d.rds.ZRevRange(ctx, utils.RecentOrdersKey(), 0, limit-1).Result()
}

// DeleteFinishedBefore 分批删除, 避免长事务锁表
func (d *orderDAO) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if d.db == nil {
		return 0, nil
	}
	var total int64
	for {
		res := d.db.WithContext(ctx).Exec(
			"DELETE FROM executor.t_executed_order WHERE id IN (SELECT id FROM executor.t_executed_order WHERE finished_at < ? LIMIT ?)",
			cutoff.UnixMilli(), DELETE_BATCH_MAX,
		)
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
		if res.RowsAffected < DELETE_BATCH_MAX {
			return total, nil
		}
	}
}
