package queue

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"cryptojackal/internal/executor/config"
	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/monitor"
	"cryptojackal/internal/executor/txlife"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const DEFAULT_TOKEN_DECIMALS = 18

// GasAdvisor 选择 gas 策略, *gas.Optimizer 满足
type GasAdvisor interface {
	SuggestStrategy(priority uint8, maxCost decimal.Decimal) (model.GasStrategy, error)
}

// PriceOracle 最新聚合价格, *pricefeed.Aggregator 满足
type PriceOracle interface {
	CurrentPrice(token string) (model.AggregatedPrice, bool)
}

// Executor 交易生命周期, *txlife.Lifecycle 满足
type Executor interface {
	Prepare(ctx context.Context, params model.TradeParams, strategy model.GasStrategy) (model.TransactionRequest, error)
	Sign(ctx context.Context, id string, wallet txlife.Wallet) ([]byte, error)
	Submit(ctx context.Context, id string, signed []byte) (common.Hash, error)
	AwaitConfirmation(ctx context.Context, id string, hash common.Hash) (model.TransactionRequest, error)
	Cancel(id string) error
}

// EventSink 订单状态事件出口
type EventSink interface {
	PublishOrderEvent(ev model.OrderEvent)
}

type Deps struct {
	Gas       GasAdvisor
	Prices    PriceOracle
	Lifecycle Executor
	Wallet    txlife.Wallet
	Events    EventSink // 可为空
}

type tracked struct {
	order    *model.Order
	deadline time.Time
	timer    *time.Timer
}

// Queue 按评分调度订单, 并发执行数受许可池限制
type Queue struct {
	cfg        config.QueueConfig
	deps       Deps
	weth       common.Address
	amountIn   *big.Int
	maxGasCost decimal.Decimal
	sem        *semaphore.Weighted
	tl         *zap.Logger
	now        func() time.Time

	pendingMu sync.Mutex
	pending   *pendingSet

	mu     sync.Mutex // 保护 active 及其中订单的可变字段
	active map[string]*tracked

	archive *lru.Cache[string, model.Order]

	metricsMu   sync.Mutex
	metrics     model.ExecutionMetrics
	execTotalMs float64
	execCount   uint64
	executing   atomic.Int64

	wake       chan struct{}
	stop       chan struct{}
	loopDone   chan struct{}
	started    atomic.Bool
	closed     atomic.Bool
	wg         conc.WaitGroup
	execCtx    context.Context
	execCancel context.CancelFunc
}

func NewQueue(cfg config.QueueConfig, chainCfg config.ChainConfig, deps Deps, logger *zap.Logger) (*Queue, error) {
	const op = "queue.new"
	if cfg.MaxConcurrentExecutions <= 0 {
		return nil, errs.Configurationf(op, "max concurrent executions must be positive, got %d", cfg.MaxConcurrentExecutions)
	}
	if cfg.MaxRetryAttempts <= 0 {
		return nil, errs.Configurationf(op, "max retry attempts must be positive, got %d", cfg.MaxRetryAttempts)
	}
	if deps.Gas == nil || deps.Prices == nil || deps.Lifecycle == nil || deps.Wallet == nil {
		return nil, errs.Configurationf(op, "gas, prices, lifecycle and wallet are required")
	}
	if !common.IsHexAddress(chainCfg.WethAddress) {
		return nil, errs.Configurationf(op, "chain.weth_address is not a valid address: %q", chainCfg.WethAddress)
	}
	amountIn, ok := new(big.Int).SetString(cfg.TradeAmountWei, 10)
	if !ok || amountIn.Sign() <= 0 {
		return nil, errs.Configurationf(op, "queue.trade_amount_wei must be a positive integer, got %q", cfg.TradeAmountWei)
	}
	maxGasCost := decimal.Zero
	if cfg.MaxGasCostEth != "" {
		d, err := decimal.NewFromString(cfg.MaxGasCostEth)
		if err != nil {
			return nil, errs.Configuration(op, fmt.Errorf("queue.max_gas_cost_eth: %w", err))
		}
		maxGasCost = d
	}

	size := cfg.ArchiveSize
	if size <= 0 {
		size = 1000
	}
	archive, err := lru.New[string, model.Order](size)
	if err != nil {
		return nil, errs.Configuration(op, err)
	}

	execCtx, execCancel := context.WithCancel(context.Background())
	return &Queue{
		cfg:        cfg,
		deps:       deps,
		weth:       common.HexToAddress(chainCfg.WethAddress),
		amountIn:   amountIn,
		maxGasCost: maxGasCost,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrentExecutions)),
		tl:         logger.Named("order_queue"),
		now:        time.Now,
		pending:    newPendingSet(),
		active:     make(map[string]*tracked),
		archive:    archive,
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		loopDone:   make(chan struct{}),
		execCtx:    execCtx,
		execCancel: execCancel,
	}, nil
}

// Submit 订单进入 Queued, 截止时间从创建时刻起算
func (q *Queue) Submit(order *model.Order) (string, error) {
	const op = "queue.submit"
	if q.closed.Load() {
		return "", errs.ErrQueueClosed
	}
	if order == nil {
		return "", errs.Validationf(op, "order is nil")
	}
	if !order.Priority.Valid() {
		return "", errs.Validationf(op, "invalid priority %d", order.Priority)
	}
	if !common.IsHexAddress(order.Opportunity.TokenAddress) {
		return "", errs.Validationf(op, "invalid token address %q", order.Opportunity.TokenAddress)
	}
	if order.Status.State != model.OrderPending {
		return "", errs.Validationf(op, "order %s is %s, want pending", order.ID, order.Status.State)
	}

	o := *order
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if q.archive.Contains(o.ID) {
		return "", errs.Validationf(op, "duplicate order id %s", o.ID)
	}
	now := q.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.Status = model.OrderStatus{State: model.OrderQueued}
	deadline := o.Deadline(q.cfg.ExecutionTimeout())

	q.mu.Lock()
	if _, dup := q.active[o.ID]; dup {
		q.mu.Unlock()
		return "", errs.Validationf(op, "duplicate order id %s", o.ID)
	}
	t := &tracked{order: &o, deadline: deadline}
	q.active[o.ID] = t
	id := o.ID
	t.timer = time.AfterFunc(deadline.Sub(now), func() {
		q.finish(id, model.OrderTimeout, "deadline exceeded")
	})
	snapshot := o
	q.mu.Unlock()

	q.pendingMu.Lock()
	q.pending.push(&snapshot)
	size := q.pending.len()
	q.pendingMu.Unlock()

	q.metricsMu.Lock()
	q.metrics.TotalOrders++
	q.metricsMu.Unlock()
	monitor.OrdersSubmitted.WithLabelValues(snapshot.Priority.String()).Inc()
	monitor.QueueSize.Set(float64(size))

	q.publish(model.ORDER_EVENT_QUEUED, snapshot)
	q.signal()

	q.tl.Debug("order queued",
		zap.String("order_id", id),
		zap.String("token", snapshot.Opportunity.TokenAddress),
		zap.String("priority", snapshot.Priority.String()),
		zap.String("strategy", snapshot.Strategy.Kind.String()),
		zap.Time("deadline", deadline))
	return id, nil
}

// Run 调度循环, 阻塞直到 ctx 结束或 Shutdown
func (q *Queue) Run(ctx context.Context) {
	if !q.started.CompareAndSwap(false, true) {
		return
	}
	defer close(q.loopDone)
	if q.closed.Load() {
		return
	}

	interval := q.cfg.AdmissionInterval()
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		q.admit()
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case <-ticker.C:
		case <-q.wake:
		}
	}
}

// admit 有空闲许可时按评分取出已就绪订单
func (q *Queue) admit() {
	for !q.closed.Load() {
		if !q.sem.TryAcquire(1) {
			return
		}
		q.pendingMu.Lock()
		id, ok := q.pending.popReady(q.now())
		size := q.pending.len()
		q.pendingMu.Unlock()
		monitor.QueueSize.Set(float64(size))
		if !ok {
			q.sem.Release(1)
			return
		}

		order, deadline, ok := q.begin(id)
		if !ok {
			q.sem.Release(1)
			continue
		}

		q.executing.Add(1)
		monitor.ConcurrentExecutions.Inc()
		q.wg.Go(func() {
			defer func() {
				q.executing.Add(-1)
				monitor.ConcurrentExecutions.Dec()
				q.sem.Release(1)
				q.signal()
			}()
			q.execute(order, deadline)
		})
	}
}

// begin Queued -> Executing, 已取消或超时的订单跳过
func (q *Queue) begin(id string) (model.Order, time.Time, bool) {
	q.mu.Lock()
	t, ok := q.active[id]
	if !ok || t.order.Status.State != model.OrderQueued || q.closed.Load() {
		q.mu.Unlock()
		return model.Order{}, time.Time{}, false
	}
	t.order.Status = model.OrderStatus{State: model.OrderExecuting}
	t.order.StartedAt = q.now()
	snapshot := *t.order
	deadline := t.deadline
	q.mu.Unlock()

	q.publish(model.ORDER_EVENT_STARTED, snapshot)
	return snapshot, deadline, true
}

func (q *Queue) execute(order model.Order, deadline time.Time) {
	ctx, cancel := context.WithDeadline(q.execCtx, deadline)
	defer cancel()

	tl := q.tl.With(zap.String("order_id", order.ID), zap.String("token", order.Opportunity.TokenAddress))

	for attempt := 1; ; attempt++ {
		if !q.startAttempt(order.ID) {
			return
		}

		result, err := q.attempt(ctx, order, deadline)
		if err == nil {
			monitor.OrderAttempts.WithLabelValues("success").Inc()
			// 截止时间之后到达的成功结果按超时处理
			if !q.now().Before(deadline) {
				q.finish(order.ID, model.OrderTimeout, "deadline exceeded before confirmation")
				return
			}
			q.complete(order.ID, result)
			return
		}

		q.recordError(order.ID, err)
		if ctx.Err() != nil {
			q.abort(order.ID, ctx.Err())
			return
		}
		if errors.Is(err, errs.ErrCancelled) {
			q.finish(order.ID, model.OrderCancelled, "cancelled")
			return
		}
		if !errs.Retryable(err) || attempt >= q.cfg.MaxRetryAttempts {
			monitor.OrderAttempts.WithLabelValues("failed").Inc()
			tl.Warn("order execution failed", zap.Int("attempt", attempt), zap.Error(err))
			q.finish(order.ID, model.OrderFailed, err.Error())
			return
		}

		monitor.OrderAttempts.WithLabelValues("retry").Inc()
		delay := q.backoff(attempt)
		tl.Info("order attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			q.abort(order.ID, ctx.Err())
			return
		case <-timer.C:
		}
	}
}

// attempt 选择 gas 策略, 校验价格后走完交易生命周期
func (q *Queue) attempt(ctx context.Context, order model.Order, deadline time.Time) (*model.TradeResult, error) {
	start := q.now()

	strategy, err := q.deps.Gas.SuggestStrategy(order.Priority.Urgency(), q.maxGasCost)
	if err != nil {
		q.tl.Debug("gas strategy unavailable, using standard", zap.String("order_id", order.ID), zap.Error(err))
		strategy = model.StandardGas()
	}

	minOut, err := q.minAmountOut(order)
	if err != nil {
		return nil, err
	}

	wallet := q.deps.Wallet.Address()
	params := model.TradeParams{
		Kind:         model.TxSwap,
		From:         wallet,
		TokenOut:     common.HexToAddress(order.Opportunity.TokenAddress),
		AmountIn:     new(big.Int).Set(q.amountIn),
		MinAmountOut: minOut,
		Recipient:    wallet,
		Deadline:     deadline,
	}

	lc := q.deps.Lifecycle
	req, err := lc.Prepare(ctx, params, strategy)
	if err != nil {
		return nil, err
	}
	if !q.bindTx(order.ID, req.ID) {
		_ = lc.Cancel(req.ID)
		return nil, errs.ErrCancelled
	}
	signed, err := lc.Sign(ctx, req.ID, q.deps.Wallet)
	if err != nil {
		return nil, err
	}
	hash, err := lc.Submit(ctx, req.ID, signed)
	if err != nil {
		return nil, err
	}
	final, err := lc.AwaitConfirmation(ctx, req.ID, hash)
	if err != nil {
		return nil, err
	}

	return &model.TradeResult{
		TxHash:       hash.Hex(),
		TxID:         req.ID,
		BlockNumber:  final.BlockNumber,
		GasUsed:      final.GasUsed,
		AmountIn:     params.AmountIn,
		MinAmountOut: minOut,
		Elapsed:      q.now().Sub(start),
	}, nil
}

// minAmountOut amountIn * P(weth) / P(token) * (1 - slippage), 按代币精度取整
func (q *Queue) minAmountOut(order model.Order) (*big.Int, error) {
	token, err := q.checkedPrice(order.Opportunity.TokenAddress)
	if err != nil {
		return nil, err
	}
	base, err := q.checkedPrice(q.weth.Hex())
	if err != nil {
		return nil, err
	}

	decimals := order.Opportunity.Decimals
	if decimals == 0 {
		decimals = DEFAULT_TOKEN_DECIMALS
	}
	out := decimal.NewFromBigInt(q.amountIn, -18).
		Mul(decimal.NewFromFloat(base.PriceUSD)).
		Div(decimal.NewFromFloat(token.PriceUSD)).
		Mul(decimal.NewFromFloat(1 - q.cfg.MaxSlippage)).
		Shift(int32(decimals)).
		Floor()
	if !out.IsPositive() {
		return nil, errs.Validationf("queue.price_check", "min amount out rounds to zero for %s", order.Opportunity.TokenAddress)
	}
	return out.BigInt(), nil
}

// checkedPrice 缺失、低置信度和过期价格可以等下一轮更新, 非正价格直接拒绝
func (q *Queue) checkedPrice(token string) (model.AggregatedPrice, error) {
	const op = "queue.price_check"
	price, ok := q.deps.Prices.CurrentPrice(token)
	if !ok {
		return model.AggregatedPrice{}, errs.Network(op, fmt.Errorf("no price for %s", token))
	}
	if price.PriceUSD <= 0 {
		return model.AggregatedPrice{}, errs.Validationf(op, "non-positive price %v for %s", price.PriceUSD, token)
	}
	if price.Confidence < q.cfg.MinPriceConfidence {
		return model.AggregatedPrice{}, errs.Network(op, fmt.Errorf("price confidence %.2f for %s below %.2f", price.Confidence, token, q.cfg.MinPriceConfidence))
	}
	if maxAge := q.cfg.MaxPriceAge(); maxAge > 0 {
		if age := q.now().Sub(price.Timestamp); age > maxAge {
			return model.AggregatedPrice{}, errs.Network(op, fmt.Errorf("price for %s is %s old", token, age.Truncate(time.Second)))
		}
	}
	return price, nil
}

// backoff base * 2^(attempt-1), 不超过 RetryMaxDelay
func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.cfg.RetryBaseDelay()
	limit := q.cfg.RetryMaxDelay()
	for i := 1; i < attempt; i++ {
		delay *= 2
		if limit > 0 && delay >= limit {
			return limit
		}
	}
	if limit > 0 && delay > limit {
		return limit
	}
	return delay
}

func (q *Queue) startAttempt(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.active[id]
	if !ok || t.order.Status.State != model.OrderExecuting {
		return false
	}
	t.order.Attempts++
	return true
}

func (q *Queue) bindTx(id, txID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.active[id]
	if !ok || t.order.Status.State != model.OrderExecuting {
		return false
	}
	t.order.TxID = txID
	return true
}

func (q *Queue) recordError(id string, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.active[id]; ok {
		t.order.LastError = err.Error()
	}
}

func (q *Queue) abort(id string, cause error) {
	if errors.Is(cause, context.DeadlineExceeded) {
		q.finish(id, model.OrderTimeout, "deadline exceeded")
		return
	}
	q.finish(id, model.OrderCancelled, "queue shutdown")
}

func (q *Queue) complete(id string, result *model.TradeResult) {
	q.transition(id, model.OrderStatus{State: model.OrderCompleted, Result: result})
}

func (q *Queue) finish(id string, state model.OrderState, reason string) (model.Order, bool) {
	return q.transition(id, model.OrderStatus{State: state, Reason: reason})
}

// transition 进入终态并归档, 已是终态时不做任何改变
func (q *Queue) transition(id string, status model.OrderStatus) (model.Order, bool) {
	q.mu.Lock()
	t, ok := q.active[id]
	if !ok || !t.order.Status.State.CanTransition(status.State) {
		q.mu.Unlock()
		return model.Order{}, false
	}
	wasQueued := t.order.Status.State == model.OrderQueued
	t.order.Status = status
	t.order.CompletedAt = q.now()
	if t.timer != nil {
		t.timer.Stop()
	}
	snapshot := *t.order
	q.mu.Unlock()

	// 先归档再移出 active, Status 查询不会出现空窗
	q.archive.Add(id, snapshot)
	q.mu.Lock()
	delete(q.active, id)
	q.mu.Unlock()

	if wasQueued {
		q.pendingMu.Lock()
		q.pending.remove(id)
		size := q.pending.len()
		q.pendingMu.Unlock()
		monitor.QueueSize.Set(float64(size))
	}

	q.record(snapshot)
	q.publish(eventKind(status.State), snapshot)

	fields := []zap.Field{
		zap.String("order_id", id),
		zap.String("state", status.State.String()),
		zap.Int("attempts", snapshot.Attempts),
	}
	if status.Reason != "" {
		fields = append(fields, zap.String("reason", status.Reason))
	}
	if status.Result != nil {
		fields = append(fields, zap.String("tx_hash", status.Result.TxHash), zap.Uint64("gas_used", status.Result.GasUsed))
	}
	q.tl.Info("order finished", fields...)
	return snapshot, true
}

func (q *Queue) record(o model.Order) {
	monitor.OrdersFinished.WithLabelValues(o.Status.State.String()).Inc()

	q.metricsMu.Lock()
	defer q.metricsMu.Unlock()
	switch o.Status.State {
	case model.OrderCompleted:
		q.metrics.CompletedOrders++
	case model.OrderFailed:
		q.metrics.FailedOrders++
	case model.OrderCancelled:
		q.metrics.CancelledOrders++
	case model.OrderTimeout:
		q.metrics.TimeoutOrders++
	}
	if !o.StartedAt.IsZero() {
		elapsed := o.CompletedAt.Sub(o.StartedAt)
		q.execTotalMs += float64(elapsed.Milliseconds())
		q.execCount++
		monitor.OrderExecutionDuration.WithLabelValues(o.Status.State.String()).Observe(elapsed.Seconds())
	}
}

// Cancel 取消未终结的订单, 执行中的订单不中断已发出的调用, 只丢弃其结果
func (q *Queue) Cancel(id string) error {
	const op = "queue.cancel"
	snapshot, ok := q.finish(id, model.OrderCancelled, "cancelled by caller")
	if !ok {
		if q.archive.Contains(id) {
			return fmt.Errorf("%s: order %s already finished: %w", op, id, errs.ErrInvalidTransition)
		}
		return fmt.Errorf("%s: order %s: %w", op, id, errs.ErrNotFound)
	}
	if snapshot.TxID != "" {
		if err := q.deps.Lifecycle.Cancel(snapshot.TxID); err != nil {
			q.tl.Debug("transaction already finished", zap.String("order_id", id), zap.String("tx_id", snapshot.TxID), zap.Error(err))
		}
	}
	return nil
}

func (q *Queue) Status(id string) (model.OrderStatus, bool) {
	o, ok := q.Order(id)
	if !ok {
		return model.OrderStatus{}, false
	}
	return o.Status, true
}

// Order 返回订单快照
func (q *Queue) Order(id string) (model.Order, bool) {
	q.mu.Lock()
	if t, ok := q.active[id]; ok {
		o := *t.order
		q.mu.Unlock()
		return o, true
	}
	q.mu.Unlock()
	return q.archive.Peek(id)
}

func (q *Queue) Metrics() model.ExecutionMetrics {
	q.metricsMu.Lock()
	m := q.metrics
	if q.execCount > 0 {
		m.AverageExecutionMs = q.execTotalMs / float64(q.execCount)
	}
	q.metricsMu.Unlock()

	if finished := m.CompletedOrders + m.FailedOrders + m.CancelledOrders + m.TimeoutOrders; finished > 0 {
		m.SuccessRate = float64(m.CompletedOrders) / float64(finished)
	}

	q.pendingMu.Lock()
	m.QueueSize = q.pending.len()
	q.pendingMu.Unlock()
	m.ConcurrentExecutions = int(q.executing.Load())
	return m
}

// Shutdown 停止调度, 排队中的订单取消, 等待执行中的订单结束; ctx 到期后强制取消
func (q *Queue) Shutdown(ctx context.Context) error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(q.stop)
	if q.started.Load() {
		select {
		case <-q.loopDone:
		case <-ctx.Done():
			q.execCancel()
			return ctx.Err()
		}
	}

	q.mu.Lock()
	queued := make([]string, 0, len(q.active))
	for id, t := range q.active {
		if t.order.Status.State == model.OrderQueued {
			queued = append(queued, id)
		}
	}
	q.mu.Unlock()
	for _, id := range queued {
		q.finish(id, model.OrderCancelled, "queue shutdown")
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.execCancel()
		q.tl.Info("order queue stopped", zap.Int("cancelled_queued", len(queued)))
		return nil
	case <-ctx.Done():
		q.execCancel()
		<-done
		q.tl.Warn("order queue stopped before executions drained", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) publish(kind model.OrderEventKind, o model.Order) {
	if q.deps.Events == nil {
		return
	}
	q.deps.Events.PublishOrderEvent(model.NewOrderEvent(kind, o))
}

func eventKind(state model.OrderState) model.OrderEventKind {
	switch state {
	case model.OrderCompleted:
		return model.ORDER_EVENT_COMPLETED
	case model.OrderFailed:
		return model.ORDER_EVENT_FAILED
	case model.OrderTimeout:
		return model.ORDER_EVENT_TIMEOUT
	default:
		return model.ORDER_EVENT_CANCELLED
	}
}
