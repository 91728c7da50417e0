package model

import "time"

// ExecutionMetrics 订单队列指标快照
type ExecutionMetrics struct {
	TotalOrders          uint64  `json:"total_orders"`
	CompletedOrders      uint64  `json:"completed_orders"`
	FailedOrders         uint64  `json:"failed_orders"`
	CancelledOrders      uint64  `json:"cancelled_orders"`
	TimeoutOrders        uint64  `json:"timeout_orders"`
	AverageExecutionMs   float64 `json:"average_execution_ms"`
	SuccessRate          float64 `json:"success_rate"`
	QueueSize            int     `json:"queue_size"`
	ConcurrentExecutions int     `json:"concurrent_executions"`
}

// TransactionMetrics 交易生命周期指标快照
type TransactionMetrics struct {
	TotalTransactions      uint64  `json:"total_transactions"`
	SuccessfulTransactions uint64  `json:"successful_transactions"`
	FailedTransactions     uint64  `json:"failed_transactions"`
	CancelledTransactions  uint64  `json:"cancelled_transactions"`
	TimeoutTransactions    uint64  `json:"timeout_transactions"`
	AverageConfirmationMs  float64 `json:"average_confirmation_ms"`
	AverageGasUsed         float64 `json:"average_gas_used"`
	SuccessRate            float64 `json:"success_rate"`
}

// PriceFeedMetrics 价格聚合指标快照
type PriceFeedMetrics struct {
	TotalUpdates      uint64    `json:"total_updates"`
	SuccessfulUpdates uint64    `json:"successful_updates"`
	FailedUpdates     uint64    `json:"failed_updates"`
	AlertsGenerated   uint64    `json:"alerts_generated"`
	AverageUpdateMs   float64   `json:"average_update_ms"`
	LastUpdateTime    time.Time `json:"last_update_time"`
}
