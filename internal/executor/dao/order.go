package dao

import (
	"context"
	"time"

	"cryptojackal/internal/executor/model"
)

// OrderDAO 已离开内存队列的订单查询
type OrderDAO interface {
	// GetOrderEvent 订单最新事件, 不存在时返回 nil
	GetOrderEvent(ctx context.Context, orderID string) (*model.OrderEvent, error)

	// RecentOrderIDs 最近进入终态的订单, 新的在前
	RecentOrderIDs(ctx context.Context, limit int64) ([]string, error)

	// DeleteFinishedBefore 删除完成时间早于 cutoff 的归档记录
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PriceDAO 价格快照表维护
type PriceDAO interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
