package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	// KafkaMessagesReceived Kafka 消费相关
	KafkaMessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_received_total",
			Help: "Total number of messages received from Kafka.",
		},
		[]string{"topic"},
	)
	KafkaWorkerMessagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_worker_messages_processed_total",
			Help: "Total number of messages processed by each opportunity worker.",
		},
		[]string{"worker_id"},
	)

	// OrdersSubmitted 订单队列
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_orders_submitted_total",
			Help: "Orders accepted by the execution queue, by priority.",
		},
		[]string{"priority"},
	)
	OrdersFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_orders_finished_total",
			Help: "Orders that reached a terminal state.",
		},
		[]string{"state"},
	)
	OrderAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_order_attempts_total",
			Help: "Execution attempts, labelled by outcome.",
		},
		[]string{"outcome"},
	)
	OrderExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "executor_order_execution_duration_seconds",
			Help:    "Time from admission to terminal state.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"state"},
	)
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "executor_queue_size",
		Help: "Orders waiting for admission.",
	})
	ConcurrentExecutions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "executor_concurrent_executions",
		Help: "Orders currently holding an execution permit.",
	})

	// TransactionsFinished 交易生命周期
	TransactionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_transactions_finished_total",
			Help: "Transactions that reached a terminal state.",
		},
		[]string{"state", "reason"},
	)
	TransactionConfirmationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "executor_transaction_confirmation_seconds",
		Help:    "Time from submission to confirmation.",
		Buckets: []float64{5, 12, 24, 36, 60, 120, 300},
	})

	// GasSamplesRecorded gas 采样
	GasSamplesRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "executor_gas_samples_total",
		Help: "Fee samples recorded by the gas optimizer.",
	})
	GasBaseFeeGwei = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "executor_gas_base_fee_gwei",
		Help: "Average base fee over the history window.",
	})
	GasPriorityFeeGwei = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "executor_gas_priority_fee_gwei",
		Help: "Average priority fee over the history window.",
	})
	GasCongestionLevel = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "executor_gas_congestion_level",
		Help: "Congestion level, 0=low 1=medium 2=high 3=critical.",
	})

	// PriceUpdates 价格聚合
	PriceUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_price_updates_total",
			Help: "Per-token aggregation cycles, labelled by result.",
		},
		[]string{"result"},
	)
	PriceSourceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_price_source_errors_total",
			Help: "Source fetches that exhausted their retries.",
		},
		[]string{"source"},
	)
	PriceAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_price_alerts_total",
			Help: "Price alerts generated, by type.",
		},
		[]string{"type"},
	)
	PriceUpdateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "executor_price_update_duration_seconds",
		Help:    "Time taken to fetch and fuse one token.",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
	})

	// AsyncWriterMessagesDropped AsyncWriter 指标
	AsyncWriterMessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "async_writer_messages_dropped_total",
			Help: "Total number of messages dropped due to full queue.",
		},
		[]string{"writer_id"},
	)
	AsyncWriterBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "async_writer_batch_size",
			Help:    "Number of items in each batch submitted to the writer.",
			Buckets: []float64{1, 10, 50, 100, 200, 500},
		},
		[]string{"writer_id"},
	)
	AsyncWriterFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "async_writer_flush_duration_seconds",
			Help:    "Time taken to flush a batch.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"writer_id"},
	)
	AsyncWriterFlushErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "async_writer_flush_errors_total",
			Help: "Batches the underlying writer failed to persist.",
		},
		[]string{"writer_id"},
	)
)

func init() {
	prometheus.MustRegister(
		// kafka指标
		KafkaMessagesReceived,
		KafkaWorkerMessagesProcessed,

		// 订单与交易
		OrdersSubmitted,
		OrdersFinished,
		OrderAttempts,
		OrderExecutionDuration,
		QueueSize,
		ConcurrentExecutions,
		TransactionsFinished,
		TransactionConfirmationDuration,

		// gas 与价格
		GasSamplesRecorded,
		GasBaseFeeGwei,
		GasPriorityFeeGwei,
		GasCongestionLevel,
		PriceUpdates,
		PriceSourceErrors,
		PriceAlerts,
		PriceUpdateDuration,

		// async 写入指标
		AsyncWriterMessagesDropped,
		AsyncWriterBatchSize,
		AsyncWriterFlushDuration,
		AsyncWriterFlushErrors,
	)
}
