package job

import (
	"context"

	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/monitor"

	"go.uber.org/zap"
)

type QueueMetricsSource interface {
	Metrics() model.ExecutionMetrics
}

type TransactionMetricsSource interface {
	Metrics() model.TransactionMetrics
}

type PriceFeedMetricsSource interface {
	Metrics() model.PriceFeedMetrics
}

type GasStatisticsSource interface {
	Statistics() (model.GasStatistics, bool)
}

// MetricsReport 定期把各组件的指标快照写日志并同步 gauge
type MetricsReport struct {
	queue  QueueMetricsSource
	txs    TransactionMetricsSource
	prices PriceFeedMetricsSource
	gas    GasStatisticsSource
	logger *zap.Logger
}

func NewMetricsReport(queue QueueMetricsSource, txs TransactionMetricsSource, prices PriceFeedMetricsSource, gas GasStatisticsSource, logger *zap.Logger) *MetricsReport {
	return &MetricsReport{
		queue:  queue,
		txs:    txs,
		prices: prices,
		gas:    gas,
		logger: logger.Named("metrics_report"),
	}
}

func (j *MetricsReport) Run(ctx context.Context) error {
	qm := j.queue.Metrics()
	monitor.QueueSize.Set(float64(qm.QueueSize))
	monitor.ConcurrentExecutions.Set(float64(qm.ConcurrentExecutions))

	tm := j.txs.Metrics()
	pm := j.prices.Metrics()

	fields := []zap.Field{
		zap.Uint64("orders_total", qm.TotalOrders),
		zap.Uint64("orders_completed", qm.CompletedOrders),
		zap.Uint64("orders_failed", qm.FailedOrders),
		zap.Uint64("orders_timeout", qm.TimeoutOrders),
		zap.Float64("order_success_rate", qm.SuccessRate),
		zap.Int("queue_size", qm.QueueSize),
		zap.Int("executing", qm.ConcurrentExecutions),
		zap.Uint64("tx_total", tm.TotalTransactions),
		zap.Float64("tx_success_rate", tm.SuccessRate),
		zap.Float64("tx_avg_confirmation_ms", tm.AverageConfirmationMs),
		zap.Uint64("price_updates", pm.TotalUpdates),
		zap.Uint64("price_updates_failed", pm.FailedUpdates),
		zap.Uint64("price_alerts", pm.AlertsGenerated),
	}
	if stats, ok := j.gas.Statistics(); ok {
		fields = append(fields,
			zap.String("gas_congestion", stats.Congestion.String()),
			zap.String("gas_trend", stats.Trend.String()),
			zap.Int("gas_samples", stats.SampleCount))
	}
	j.logger.Info("executor metrics", fields...)
	return nil
}
