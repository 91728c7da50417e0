package executor

import (
	"context"
	"strings"
	"sync"
	"time"

	"cryptojackal/internal/executor/cache"
	"cryptojackal/internal/executor/config"
	"cryptojackal/internal/executor/consumer"
	"cryptojackal/internal/executor/dao"
	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/gas"
	"cryptojackal/internal/executor/handler"
	"cryptojackal/internal/executor/job"
	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/monitor"
	"cryptojackal/internal/executor/pricefeed"
	"cryptojackal/internal/executor/queue"
	"cryptojackal/internal/executor/repository"
	"cryptojackal/internal/executor/sink"
	"cryptojackal/internal/executor/txlife"
	"cryptojackal/internal/executor/wallet"
	"cryptojackal/internal/executor/writer"
	"cryptojackal/internal/executor/writer/alert"
	"cryptojackal/internal/executor/writer/order"
	"cryptojackal/internal/executor/writer/price"
	"cryptojackal/pkg/coingecko"
	"cryptojackal/pkg/dexscreener"
	"cryptojackal/pkg/moralis"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	WRITER_BATCH_SIZE     = 100
	WRITER_FLUSH_INTERVAL = time.Second
	PRICE_CACHE_TIMEOUT   = 200 * time.Millisecond
	RETENTION_INTERVAL    = time.Hour
)

var (
	_ queue.GasAdvisor    = (*gas.Optimizer)(nil)
	_ queue.Executor      = (*txlife.Lifecycle)(nil)
	_ queue.EventSink     = (*sink.OrderEventSink)(nil)
	_ txlife.GasAdvisor   = (*gas.Optimizer)(nil)
	_ txlife.Wallet       = (*wallet.RemoteSigner)(nil)
	_ pricefeed.Publisher = (*sink.PriceSink)(nil)
	_ job.SampleRecorder  = (*gas.Optimizer)(nil)
)

// asyncWriter 各类型 AsyncBatchWriter 的公共部分
type asyncWriter interface {
	Start(ctx context.Context)
	Close()
}

// PriceFallback 本地没有价格时的兜底查询, *cache.PriceCache 满足
type PriceFallback interface {
	Get(ctx context.Context, token string) (model.AggregatedPrice, bool)
}

type Core struct {
	cfg        config.Config
	tl         *zap.Logger
	repo       repository.Repository
	optimizer  *gas.Optimizer
	aggregator *pricefeed.Aggregator
	lifecycle  *txlife.Lifecycle
	queue      *queue.Queue
	orders     dao.OrderDAO
	prices     PriceFallback
	tokens     []string
	scheduler  *job.Scheduler
	consumer   *consumer.OpportunityConsumer
	writers    []asyncWriter
	metrics    *monitor.MetricsServer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg config.Config, logger *zap.Logger) (*Core, error) {
	// 初始化repo
	repo := repository.New(cfg, logger)
	provider := repo.GetEthClient()

	optimizer := gas.NewOptimizer(cfg.Gas, logger)

	clients := pricefeed.Clients{
		CoinGecko:   coingecko.NewCoinGeckoClient(cfg.CoinGecko, logger.Named("coingecko")),
		DexScreener: dexscreener.NewDexScreenerClient(cfg.DexScreener, logger.Named("dexscreener")),
		Caller:      provider,
	}
	if cfg.Moralis.APIKey != "" {
		clients.Moralis = moralis.NewMoralisClient(cfg.Moralis, logger.Named("moralis"))
	}
	sources := pricefeed.NewSources(cfg.PriceFeed, cfg.Chain, clients)
	aggregator := pricefeed.NewAggregator(cfg.PriceFeed, sources, logger)

	lifecycle, err := txlife.NewLifecycle(cfg.Transaction, cfg.Chain, provider, optimizer, logger)
	if err != nil {
		return nil, err
	}

	signer, err := wallet.NewRemoteSigner(cfg.Wallet, logger)
	if err != nil {
		return nil, err
	}

	daos := dao.NewDAOManager(repo.GetDB(), repo.GetMainRDB())
	core := &Core{
		cfg:        cfg,
		tl:         logger.Named("core"),
		repo:       repo,
		optimizer:  optimizer,
		aggregator: aggregator,
		lifecycle:  lifecycle,
		orders:     daos.OrderDAO,
		prices:     cache.NewPriceCache(logger, repo.GetPriceRDB(), cfg.Chain.ChainID),
		tokens:     priceTokens(cfg),
		metrics:    monitor.NewMetricsServer(cfg.Monitor, logger.Named("metrics")),
	}

	events, priceSink := core.buildWriters(logger)
	aggregator.SetPublisher(priceSink)

	q, err := queue.NewQueue(cfg.Queue, cfg.Chain, queue.Deps{
		Gas:       optimizer,
		Prices:    core.priceOracle(),
		Lifecycle: lifecycle,
		Wallet:    signer,
		Events:    events,
	}, logger)
	if err != nil {
		return nil, err
	}
	core.queue = q

	// 机会消费 (可选)
	if strings.TrimSpace(cfg.Kafka.Brokers) != "" {
		core.consumer = consumer.NewOpportunityConsumer(cfg.Kafka, logger.Named("opportunity_consumer"), handler.NewOpportunityHandler(logger, q))
	}

	// 初始化作业调度器
	scheduler := job.NewScheduler(logger)
	scheduler.RegisterJob("gas_sample", cfg.Chain.GasSampleInterval(), job.NewGasSampler(provider, optimizer, logger).Run)
	scheduler.RegisterJob("metrics_report", time.Duration(cfg.Queue.MetricsIntervalSeconds)*time.Second,
		job.NewMetricsReport(q, lifecycle, aggregator, optimizer, logger).Run)
	if repo.GetDB() != nil && cfg.Postgres.RetentionDays > 0 {
		scheduler.RegisterJob("retention", RETENTION_INTERVAL,
			job.NewRetentionJob(daos.OrderDAO, daos.PriceDAO, cfg.Postgres.Retention(), logger).Run)
	}
	core.scheduler = scheduler

	return core, nil
}

// buildWriters 按已配置的存储创建异步 writer
func (c *Core) buildWriters(logger *zap.Logger) (*sink.OrderEventSink, *sink.PriceSink) {
	wl := logger.Named("writer")
	events := sink.NewOrderEventSink()
	prices := sink.NewPriceSink()

	redisStatus := writer.NewAsyncBatchWriter(wl, order.NewRedisOrderStatusWriter(c.repo.GetMainRDB(), wl), WRITER_BATCH_SIZE, WRITER_FLUSH_INTERVAL, "redis_order_status", 1)
	events.Stream(redisStatus)
	c.writers = append(c.writers, redisStatus)

	latestPrice := writer.NewAsyncBatchWriter(wl, price.NewRedisLatestPriceWriter(c.repo.GetPriceRDB(), wl, c.cfg.Chain.ChainID), WRITER_BATCH_SIZE, WRITER_FLUSH_INTERVAL, "redis_latest_price", 1)
	prices.Prices(latestPrice)
	c.writers = append(c.writers, latestPrice)

	if mq := c.repo.GetMQ(); mq != nil {
		kafkaEvents := writer.NewAsyncBatchWriter(wl, order.NewKafkaOrderEventWriter(mq, wl, c.cfg.Kafka.TopicOrderEvent), WRITER_BATCH_SIZE, WRITER_FLUSH_INTERVAL, "kafka_order_event", 1)
		events.Stream(kafkaEvents)
		c.writers = append(c.writers, kafkaEvents)
	}

	if db := c.repo.GetDB(); db != nil {
		executed := writer.NewAsyncBatchWriter(wl, order.NewDbExecutedOrderWriter(db, wl), WRITER_BATCH_SIZE, WRITER_FLUSH_INTERVAL, "db_executed_order", 1)
		events.Terminal(executed)
		snapshots := writer.NewAsyncBatchWriter(wl, price.NewDbPriceSnapshotWriter(db, wl), WRITER_BATCH_SIZE*5, 5*WRITER_FLUSH_INTERVAL, "db_price_snapshot", 1)
		prices.Prices(snapshots)
		c.writers = append(c.writers, executed, snapshots)
	}

	if sdb := c.repo.GetSelectDB(); sdb != nil {
		analytics := writer.NewAsyncBatchWriter(wl, price.NewSelectDBPriceWriter(sdb, c.cfg.SelectDB.PriceTable, c.cfg.Chain.ChainID, wl), WRITER_BATCH_SIZE*5, 5*WRITER_FLUSH_INTERVAL, "selectdb_price_snapshot", 1)
		prices.Prices(analytics)
		c.writers = append(c.writers, analytics)
	}

	if es := c.repo.GetES(); es != nil {
		alerts := writer.NewAsyncBatchWriter(wl, alert.NewESPriceAlertWriter(es, wl, c.cfg.Elasticsearch.AlertsIndexName), WRITER_BATCH_SIZE, WRITER_FLUSH_INTERVAL, "es_price_alert", 1)
		prices.Alerts(alerts)
		c.writers = append(c.writers, alerts)
	}
	return events, prices
}

// Start 启动所有组件, 阻塞直到 ctx 结束或 Stop
func (c *Core) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.tl.Info("Starting executor core...")
	c.metrics.Run()

	// writer 使用独立 ctx, 停止时由 Close 刷完剩余数据
	writerCtx := context.WithoutCancel(ctx)
	for _, w := range c.writers {
		w.Start(writerCtx)
	}

	c.scheduler.Start(ctx)
	c.aggregator.Start(ctx, c.tokens)
	go func() {
		defer close(c.done)
		c.queue.Run(ctx)
	}()
	if c.consumer != nil {
		c.consumer.Run(ctx)
	}
	c.tl.Info("Executor started successfully", zap.Strings("tokens", c.tokens))

	<-ctx.Done()
	c.tl.Info("Shutting down executor due to context cancellation...")
}

// Stop 按依赖倒序关闭: 先停止入口, 再排空队列, 最后关闭存储
func (c *Core) Stop(ctx context.Context) {
	c.tl.Info("Stopping executor core...")

	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if c.consumer != nil && cancel != nil {
		if err := c.consumer.Stop(); err != nil {
			c.tl.Warn("stop consumer failed", zap.Error(err))
		}
	}

	if err := c.queue.Shutdown(ctx); err != nil {
		c.tl.Warn("queue shutdown incomplete", zap.Error(err))
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	c.aggregator.Stop()
	c.scheduler.Stop(ctx)

	for _, w := range c.writers {
		w.Close()
	}

	if err := c.metrics.Stop(ctx); err != nil {
		c.tl.Warn("stop metrics server failed", zap.Error(err))
	}
	if err := c.repo.Close(); err != nil {
		c.tl.Warn("close repository failed", zap.Error(err))
	}

	c.tl.Info("Executor core stopped.")
}

func (c *Core) SubmitOrder(o *model.Order) (string, error) {
	return c.queue.Submit(o)
}

// OrderStatus 内存里没有时查询持久化的最新事件
func (c *Core) OrderStatus(ctx context.Context, id string) (model.OrderStatus, error) {
	if status, ok := c.queue.Status(id); ok {
		return status, nil
	}
	ev, err := c.orders.GetOrderEvent(ctx, id)
	if err != nil {
		return model.OrderStatus{}, errs.Network("core.order_status", err)
	}
	if ev == nil {
		return model.OrderStatus{}, errs.ErrNotFound
	}
	status, ok := ev.Status()
	if !ok {
		return model.OrderStatus{}, errs.Internal("core.order_status", errs.ErrInvalidTransition)
	}
	return status, nil
}

// RecentOrderIDs 最近进入终态的订单 ID, 新的在前
func (c *Core) RecentOrderIDs(ctx context.Context, n int64) ([]string, error) {
	return c.orders.RecentOrderIDs(ctx, n)
}

func (c *Core) CancelOrder(id string) error {
	return c.queue.Cancel(id)
}

func (c *Core) QueueMetrics() model.ExecutionMetrics {
	return c.queue.Metrics()
}

func (c *Core) GasStatistics() (model.GasStatistics, bool) {
	return c.optimizer.Statistics()
}

func (c *Core) GasRecommendation(strategy model.GasStrategy) (model.GasRecommendation, error) {
	return c.optimizer.Recommend(strategy)
}

func (c *Core) CurrentPrice(ctx context.Context, token string) (model.AggregatedPrice, bool) {
	if p, ok := c.aggregator.CurrentPrice(token); ok {
		return p, true
	}
	return c.prices.Get(ctx, token)
}

func (c *Core) RecentPriceAlerts(n int) []model.PriceAlert {
	return c.aggregator.RecentAlerts(n)
}

func (c *Core) TransactionStatus(id string) (model.TransactionRequest, bool) {
	return c.lifecycle.Status(id)
}

func (c *Core) CancelTransaction(id string) error {
	return c.lifecycle.Cancel(id)
}

func (c *Core) TransactionMetrics() model.TransactionMetrics {
	return c.lifecycle.Metrics()
}

// priceOracle 队列看到的价格: 本地聚合优先, 其次是其他实例写入的缓存
func (c *Core) priceOracle() queue.PriceOracle {
	return fallbackOracle{local: c.aggregator, remote: c.prices}
}

type fallbackOracle struct {
	local  queue.PriceOracle
	remote PriceFallback
}

func (o fallbackOracle) CurrentPrice(token string) (model.AggregatedPrice, bool) {
	if p, ok := o.local.CurrentPrice(token); ok {
		return p, true
	}
	if o.remote == nil {
		return model.AggregatedPrice{}, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), PRICE_CACHE_TIMEOUT)
	defer cancel()
	return o.remote.Get(ctx, token)
}

// priceTokens 配置的 token 加上 WETH, 换算最小成交量需要 WETH 价格
func priceTokens(cfg config.Config) []string {
	seen := make(map[common.Address]struct{}, len(cfg.PriceFeed.Tokens)+1)
	tokens := make([]string, 0, len(cfg.PriceFeed.Tokens)+1)
	for _, t := range append([]string{cfg.Chain.WethAddress}, cfg.PriceFeed.Tokens...) {
		if !common.IsHexAddress(t) {
			continue
		}
		addr := common.HexToAddress(t)
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		tokens = append(tokens, addr.Hex())
	}
	return tokens
}
