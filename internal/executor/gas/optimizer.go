package gas

import (
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"cryptojackal/internal/executor/config"
	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/monitor"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	customConfidence = 0.8
	maxVolatilityHit = 0.5
)

var (
	weiPerEth = decimal.New(1, 18)

	congestionMultiplier = map[model.CongestionLevel]float64{
		model.CongestionLow:      0.9,
		model.CongestionMedium:   1.0,
		model.CongestionHigh:     1.2,
		model.CongestionCritical: 1.5,
	}
	trendMultiplier = map[model.TrendDirection]float64{
		model.TrendFalling: 0.95,
		model.TrendStable:  1.0,
		model.TrendRising:  1.1,
	}
	// 各策略基础确认时间
	baseConfirmation = map[model.GasStrategyKind]time.Duration{
		model.GasConservative: 180 * time.Second,
		model.GasStandard:     60 * time.Second,
		model.GasAggressive:   30 * time.Second,
		model.GasEmergency:    15 * time.Second,
		model.GasCustom:       60 * time.Second,
	}
	congestionDelay = map[model.CongestionLevel]float64{
		model.CongestionLow:      0.8,
		model.CongestionMedium:   1.0,
		model.CongestionHigh:     1.5,
		model.CongestionCritical: 2.0,
	}
)

type multiplier struct {
	base       float64
	priority   float64
	confidence float64
}

// cachedRecommendation 绑定生成时的统计快照, 快照变化即失效
type cachedRecommendation struct {
	stats *model.GasStatistics
	rec   model.GasRecommendation
}

// Optimizer 维护 gas 历史窗口并给出各策略的费用建议
type Optimizer struct {
	cfg         config.GasConfig
	tl          *zap.Logger
	multipliers map[model.GasStrategyKind]multiplier
	maxBaseFee  *big.Int
	maxPriority *big.Int

	mu      sync.Mutex // 保护 history, 写入与重算互斥
	history []model.GasDataPoint

	stats atomic.Pointer[model.GasStatistics]
	cache *cache.Cache
	now   func() time.Time
}

func NewOptimizer(cfg config.GasConfig, logger *zap.Logger) *Optimizer {
	multipliers := make(map[model.GasStrategyKind]multiplier, len(cfg.Multipliers))
	for _, kind := range []model.GasStrategyKind{model.GasConservative, model.GasStandard, model.GasAggressive, model.GasEmergency} {
		m := cfg.Multipliers[kind.String()]
		multipliers[kind] = multiplier{base: m.Base, priority: m.Priority, confidence: m.Confidence}
	}

	freshness := cfg.UpdateInterval()
	if freshness <= 0 {
		freshness = 15 * time.Second
	}

	return &Optimizer{
		cfg:         cfg,
		tl:          logger.Named("gas_optimizer"),
		multipliers: multipliers,
		maxBaseFee:  gweiToWei(cfg.MaxBaseFeeGwei),
		maxPriority: gweiToWei(cfg.MaxPriorityFeeGwei),
		cache:       cache.New(freshness, 2*freshness),
		now:         time.Now,
	}
}

// RecordSample 写入一个区块的 gas 采样并重算统计
func (o *Optimizer) RecordSample(baseFee, priorityFee *big.Int, blockNumber uint64, gasUsedRatio float64) error {
	const op = "gas.record_sample"
	if baseFee == nil || priorityFee == nil || baseFee.Sign() < 0 || priorityFee.Sign() < 0 {
		return errs.Validationf(op, "fees must be non-negative, got base=%v priority=%v", baseFee, priorityFee)
	}
	if gasUsedRatio < 0 || gasUsedRatio > 1 {
		return errs.Validationf(op, "gas used ratio %v out of [0,1]", gasUsedRatio)
	}

	now := o.now()
	point := model.GasDataPoint{
		Timestamp:    now,
		BaseFee:      new(big.Int).Set(baseFee),
		PriorityFee:  new(big.Int).Set(priorityFee),
		BlockNumber:  blockNumber,
		GasUsedRatio: gasUsedRatio,
	}

	o.mu.Lock()
	if n := len(o.history); n > 0 && blockNumber != 0 && o.history[n-1].BlockNumber == blockNumber {
		o.mu.Unlock()
		return nil
	}
	o.history = append(o.history, point)
	o.prune(now)
	stats := computeStatistics(o.history, o.cfg.CongestionThreshold, now)
	o.stats.Store(&stats)
	o.mu.Unlock()

	o.cache.Flush()

	monitor.GasSamplesRecorded.Inc()
	monitor.GasBaseFeeGwei.Set(toGwei(stats.AvgBaseFee))
	monitor.GasPriorityFeeGwei.Set(toGwei(stats.AvgPriorityFee))
	monitor.GasCongestionLevel.Set(float64(stats.Congestion))

	o.tl.Debug("gas sample recorded",
		zap.Uint64("block", blockNumber),
		zap.Float64("base_fee_gwei", toGwei(baseFee)),
		zap.Float64("gas_used_ratio", gasUsedRatio),
		zap.String("congestion", stats.Congestion.String()),
		zap.String("trend", stats.Trend.String()))
	return nil
}

// prune 按保留时长和最大样本数裁剪, 调用方持有 mu
func (o *Optimizer) prune(now time.Time) {
	cut := 0
	if retention := o.cfg.Retention(); retention > 0 {
		cutoff := now.Add(-retention)
		for cut < len(o.history) && o.history[cut].Timestamp.Before(cutoff) {
			cut++
		}
	}
	if o.cfg.MaxSamples > 0 && len(o.history)-cut > o.cfg.MaxSamples {
		cut = len(o.history) - o.cfg.MaxSamples
	}
	if cut > 0 {
		o.history = append(o.history[:0:0], o.history[cut:]...)
	}
}

// Statistics 返回最新统计, 无样本时第二个返回值为 false
func (o *Optimizer) Statistics() (model.GasStatistics, bool) {
	stats := o.stats.Load()
	if stats == nil {
		return model.GasStatistics{}, false
	}
	return *stats, true
}

// History 返回当前窗口内的样本副本
func (o *Optimizer) History() []model.GasDataPoint {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.GasDataPoint, len(o.history))
	copy(out, o.history)
	return out
}

// Recommend 返回策略对应的 gas 参数, 同一统计快照内复用缓存
func (o *Optimizer) Recommend(strategy model.GasStrategy) (model.GasRecommendation, error) {
	stats := o.stats.Load()
	if stats == nil {
		return model.GasRecommendation{}, errs.ErrGasUnavailable
	}

	key := strategy.CacheKey()
	if v, ok := o.cache.Get(key); ok {
		if c := v.(cachedRecommendation); c.stats == stats {
			return c.rec, nil
		}
	}

	rec, err := o.compute(strategy, *stats)
	if err != nil {
		return model.GasRecommendation{}, err
	}
	o.cache.SetDefault(key, cachedRecommendation{stats: stats, rec: rec})
	return rec, nil
}

func (o *Optimizer) compute(strategy model.GasStrategy, stats model.GasStatistics) (model.GasRecommendation, error) {
	var (
		baseFee, priorityFee *big.Int
		confidence           float64
	)

	if strategy.Kind == model.GasCustom {
		if strategy.MaxFee == nil || strategy.PriorityFee == nil || strategy.MaxFee.Cmp(strategy.PriorityFee) < 0 {
			return model.GasRecommendation{}, errs.Validationf("gas.recommend", "custom strategy needs max fee >= priority fee")
		}
		priorityFee = minBig(strategy.PriorityFee, o.maxPriority)
		baseFee = minBig(new(big.Int).Sub(strategy.MaxFee, strategy.PriorityFee), o.maxBaseFee)
		confidence = customConfidence
	} else {
		m, ok := o.multipliers[strategy.Kind]
		if !ok {
			return model.GasRecommendation{}, errs.Internal("gas.recommend", fmt.Errorf("no multiplier for %s", strategy.Kind))
		}
		network := congestionMultiplier[stats.Congestion] * trendMultiplier[stats.Trend]
		baseFee = minBig(scale(stats.AvgBaseFee, m.base*network), o.maxBaseFee)
		priorityFee = minBig(scale(stats.AvgPriorityFee, m.priority*network), o.maxPriority)
		confidence = m.confidence
	}

	confidence *= 1 - minFloat(stats.Volatility, maxVolatilityHit)
	maxFee := new(big.Int).Add(baseFee, priorityFee)

	gasLimit := o.cfg.DefaultGasLimit
	cost := decimal.NewFromBigInt(maxFee, 0).Mul(decimal.NewFromInt(int64(gasLimit))).Div(weiPerEth)

	confirmation := time.Duration(float64(baseConfirmation[strategy.Kind]) * congestionDelay[stats.Congestion])

	return model.GasRecommendation{
		Strategy:              strategy,
		BaseFee:               baseFee,
		PriorityFee:           priorityFee,
		MaxFee:                maxFee,
		GasLimit:              gasLimit,
		Confidence:            confidence,
		EstimatedCostETH:      cost,
		EstimatedConfirmation: confirmation,
		CreatedAt:             o.now(),
	}, nil
}

// SuggestStrategy priority 为 0-10 的紧急度, maxCost 为零表示不限预算
func (o *Optimizer) SuggestStrategy(priority uint8, maxCost decimal.Decimal) (model.GasStrategy, error) {
	stats := o.stats.Load()
	if stats == nil {
		return model.StandardGas(), errs.ErrGasUnavailable
	}

	if priority >= 8 || stats.Congestion == model.CongestionCritical {
		return model.EmergencyGas(), nil
	}
	if priority >= 6 {
		return model.AggressiveGas(), nil
	}
	if maxCost.IsPositive() {
		rec, err := o.Recommend(model.StandardGas())
		if err != nil {
			return model.StandardGas(), err
		}
		if rec.EstimatedCostETH.GreaterThan(maxCost) {
			return model.ConservativeGas(), nil
		}
	}
	if priority >= 4 {
		return model.StandardGas(), nil
	}
	return model.ConservativeGas(), nil
}

// FavorableForTrading 网络未严重拥堵且标准策略成本在预算内
func (o *Optimizer) FavorableForTrading(maxCost decimal.Decimal) (bool, error) {
	stats := o.stats.Load()
	if stats == nil {
		return false, errs.ErrGasUnavailable
	}
	if stats.Congestion == model.CongestionCritical {
		return false, nil
	}
	if !maxCost.IsPositive() {
		return true, nil
	}
	rec, err := o.Recommend(model.StandardGas())
	if err != nil {
		return false, err
	}
	return rec.EstimatedCostETH.LessThanOrEqual(maxCost), nil
}

func scale(v *big.Int, factor float64) *big.Int {
	return decimal.NewFromBigInt(v, 0).Mul(decimal.NewFromFloat(factor)).Floor().BigInt()
}

func gweiToWei(g float64) *big.Int {
	return decimal.NewFromFloat(g).Mul(decimal.New(1, 9)).Floor().BigInt()
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) > 0 {
		return new(big.Int).Set(b)
	}
	return new(big.Int).Set(a)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
