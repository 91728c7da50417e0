package utils

import (
	"fmt"
	"strings"
)

// OrderStatusKey 订单最新事件快照
func OrderStatusKey(orderID string) string {
	return fmt.Sprintf("cryptojackal:order:%s", orderID)
}

// RecentOrdersKey 最近终态订单 zset, score 为完成时间
func RecentOrdersKey() string {
	return "cryptojackal:order:recent"
}

// LatestPriceKey 聚合价格最新值
func LatestPriceKey(chainID int64, tokenAddress string) string {
	return fmt.Sprintf("cryptojackal:price:%d:%s", chainID, strings.ToLower(tokenAddress))
}
