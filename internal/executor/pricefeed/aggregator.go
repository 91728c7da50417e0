package pricefeed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cryptojackal/internal/executor/config"
	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/monitor"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Publisher 接收每次成功聚合的结果和告警, 实现方不应阻塞
type Publisher interface {
	PublishPrice(price model.AggregatedPrice)
	PublishAlerts(alerts []model.PriceAlert)
}

type sourceResult struct {
	source model.PriceSource
	data   model.PriceData
	err    error
}

// Aggregator 多源价格聚合, 维护每个 token 的最新价格、报价历史和告警日志
type Aggregator struct {
	cfg       config.PriceFeedConfig
	tl        *zap.Logger
	sources   []Source
	publisher Publisher
	now       func() time.Time

	mu      sync.RWMutex
	latest  map[string]model.AggregatedPrice
	history map[string][]model.PriceData
	alerts  []model.PriceAlert

	metricsMu   sync.Mutex
	metrics     model.PriceFeedMetrics
	totalTimeMs float64

	wg     conc.WaitGroup
	cancel context.CancelFunc
}

func NewAggregator(cfg config.PriceFeedConfig, sources []Source, logger *zap.Logger) *Aggregator {
	enabled := make([]Source, 0, len(sources))
	for _, s := range sources {
		if cfg.SourceEnabled(string(s.Name())) {
			enabled = append(enabled, s)
		}
	}
	return &Aggregator{
		cfg:     cfg,
		tl:      logger.Named("price_feed"),
		sources: enabled,
		now:     time.Now,
		latest:  make(map[string]model.AggregatedPrice),
		history: make(map[string][]model.PriceData),
	}
}

// SetPublisher 需在 Start 之前调用
func (a *Aggregator) SetPublisher(p Publisher) {
	a.publisher = p
}

// Start 按固定间隔更新所有 token, 每轮内 token 之间并发
func (a *Aggregator) Start(ctx context.Context, tokens []string) {
	ctx, a.cancel = context.WithCancel(ctx)
	interval := a.cfg.UpdateInterval()
	a.tl.Info("price feed started", zap.Int("tokens", len(tokens)), zap.Int("sources", len(a.sources)), zap.Duration("interval", interval))

	a.wg.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			a.updateAll(ctx, tokens)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	})
}

// Stop 等待当前一轮更新结束
func (a *Aggregator) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.tl.Info("price feed stopped")
}

func (a *Aggregator) updateAll(ctx context.Context, tokens []string) {
	var wg conc.WaitGroup
	for _, token := range tokens {
		wg.Go(func() {
			if _, err := a.UpdateToken(ctx, token); err != nil && ctx.Err() == nil {
				a.tl.Warn("price update failed", zap.String("token", token), zap.Error(err))
			}
		})
	}
	wg.Wait()
}

// UpdateToken 拉取所有数据源并融合, 全部数据源失败时返回 Network 错误
func (a *Aggregator) UpdateToken(ctx context.Context, token string) (model.AggregatedPrice, error) {
	const op = "pricefeed.update"
	start := a.now()
	key := normalize(token)

	quotes := a.fetchAll(ctx, token)
	if len(quotes) == 0 {
		a.recordUpdate(start, false, 0)
		return model.AggregatedPrice{}, errs.Network(op, fmt.Errorf("no source responded for %s", token))
	}

	agg, err := Aggregate(quotes, a.cfg.OutlierThreshold)
	if err != nil {
		a.recordUpdate(start, false, 0)
		return model.AggregatedPrice{}, err
	}
	if agg.Timestamp.IsZero() {
		agg.Timestamp = a.now()
	}

	a.mu.Lock()
	prev, hasPrev := a.latest[key]
	alerts := detectAlerts(prev, hasPrev, agg, a.cfg.Alerts, a.now())
	a.latest[key] = agg
	a.history[key] = appendBounded(a.history[key], quotes, a.cfg.MaxHistory)
	a.alerts = appendBounded(a.alerts, alerts, a.cfg.MaxAlerts)
	a.mu.Unlock()

	a.recordUpdate(start, true, len(alerts))
	for _, alert := range alerts {
		monitor.PriceAlerts.WithLabelValues(string(alert.Type)).Inc()
		a.tl.Info("price alert", zap.String("token", alert.TokenAddress), zap.String("type", string(alert.Type)), zap.String("message", alert.Message))
	}
	if a.publisher != nil {
		a.publisher.PublishPrice(agg)
		if len(alerts) > 0 {
			a.publisher.PublishAlerts(alerts)
		}
	}

	a.tl.Debug("price updated",
		zap.String("token", token),
		zap.Float64("price_usd", agg.PriceUSD),
		zap.Int("sources", agg.SourceCount),
		zap.Float64("confidence", agg.Confidence),
		zap.Bool("outlier", agg.OutlierDetected))
	return agg, nil
}

// fetchAll 并发请求所有数据源, 丢弃重试耗尽的数据源
func (a *Aggregator) fetchAll(ctx context.Context, token string) []model.PriceData {
	p := pool.NewWithResults[sourceResult]()
	for _, src := range a.sources {
		p.Go(func() sourceResult {
			data, err := a.fetchWithRetry(ctx, src, token)
			return sourceResult{source: src.Name(), data: data, err: err}
		})
	}

	var quotes []model.PriceData
	for _, r := range p.Wait() {
		if r.err != nil {
			monitor.PriceSourceErrors.WithLabelValues(string(r.source)).Inc()
			a.tl.Debug("price source failed", zap.String("source", string(r.source)), zap.String("token", token), zap.Error(r.err))
			continue
		}
		if r.data.TokenAddress == "" {
			r.data.TokenAddress = token
		}
		quotes = append(quotes, r.data)
	}
	return quotes
}

// fetchWithRetry 每次尝试独立超时, 固定间隔重试, Validation 错误直接返回
func (a *Aggregator) fetchWithRetry(ctx context.Context, src Source, token string) (model.PriceData, error) {
	attempts := a.cfg.MaxRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, a.cfg.AggregationTimeout())
		data, err := src.FetchPrice(attemptCtx, token)
		cancel()
		if err == nil {
			return data, nil
		}
		lastErr = err
		if errs.Is(err, errs.KindValidation) || attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return model.PriceData{}, ctx.Err()
		case <-time.After(a.cfg.RetryDelay()):
		}
	}
	return model.PriceData{}, lastErr
}

func (a *Aggregator) recordUpdate(start time.Time, ok bool, alerts int) {
	elapsed := a.now().Sub(start)
	monitor.PriceUpdateDuration.Observe(elapsed.Seconds())
	result := "success"
	if !ok {
		result = "failure"
	}
	monitor.PriceUpdates.WithLabelValues(result).Inc()

	a.metricsMu.Lock()
	defer a.metricsMu.Unlock()
	a.metrics.TotalUpdates++
	if ok {
		a.metrics.SuccessfulUpdates++
		a.metrics.LastUpdateTime = a.now()
	} else {
		a.metrics.FailedUpdates++
	}
	a.metrics.AlertsGenerated += uint64(alerts)
	a.totalTimeMs += float64(elapsed.Microseconds()) / 1000
	a.metrics.AverageUpdateMs = a.totalTimeMs / float64(a.metrics.TotalUpdates)
}

// CurrentPrice 最近一次聚合结果
func (a *Aggregator) CurrentPrice(token string) (model.AggregatedPrice, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.latest[normalize(token)]
	return p, ok
}

// History 按时间升序的原始报价副本
func (a *Aggregator) History(token string) []model.PriceData {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h := a.history[normalize(token)]
	out := make([]model.PriceData, len(h))
	copy(out, h)
	return out
}

// RecentAlerts 最新的 n 条告警, 新的在前
func (a *Aggregator) RecentAlerts(n int) []model.PriceAlert {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if n <= 0 || n > len(a.alerts) {
		n = len(a.alerts)
	}
	out := make([]model.PriceAlert, 0, n)
	for i := len(a.alerts) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, a.alerts[i])
	}
	return out
}

func (a *Aggregator) Metrics() model.PriceFeedMetrics {
	a.metricsMu.Lock()
	defer a.metricsMu.Unlock()
	return a.metrics
}

func normalize(token string) string {
	return strings.ToLower(token)
}

func appendBounded[T any](s []T, items []T, limit int) []T {
	s = append(s, items...)
	if limit > 0 && len(s) > limit {
		s = append(s[:0:0], s[len(s)-limit:]...)
	}
	return s
}
