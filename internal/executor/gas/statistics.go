package gas

import (
	"math"
	"math/big"
	"sort"
	"time"

	"cryptojackal/internal/executor/model"
)

const (
	trendWindow        = 10
	trendMinSamples    = 2 * trendWindow
	trendChangePercent = 0.05
	congestionMedium   = 0.5
	congestionCritical = 0.95
	maxVolatility      = 1.0
)

var gwei = big.NewFloat(1e9)

// computeStatistics 从当前窗口推导统计数据, history 按时间升序且非空
func computeStatistics(history []model.GasDataPoint, congestionThreshold float64, now time.Time) model.GasStatistics {
	n := len(history)
	baseFees := make([]*big.Int, n)
	priorityFees := make([]*big.Int, n)
	for i, p := range history {
		baseFees[i] = p.BaseFee
		priorityFees[i] = p.PriorityFee
	}

	return model.GasStatistics{
		AvgBaseFee:        mean(baseFees),
		AvgPriorityFee:    mean(priorityFees),
		MedianBaseFee:     median(baseFees),
		MedianPriorityFee: median(priorityFees),
		Volatility:        volatility(baseFees),
		Trend:             trend(baseFees),
		Congestion:        congestion(history, congestionThreshold),
		AvgGasUsedRatio:   avgGasUsedRatio(history),
		SampleCount:       n,
		LatestBlock:       history[n-1].BlockNumber,
		UpdatedAt:         now,
	}
}

func mean(values []*big.Int) *big.Int {
	if len(values) == 0 {
		return new(big.Int)
	}
	sum := new(big.Int)
	for _, v := range values {
		sum.Add(sum, v)
	}
	return sum.Div(sum, big.NewInt(int64(len(values))))
}

func median(values []*big.Int) *big.Int {
	if len(values) == 0 {
		return new(big.Int)
	}
	sorted := make([]*big.Int, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return new(big.Int).Set(sorted[mid])
	}
	sum := new(big.Int).Add(sorted[mid-1], sorted[mid])
	return sum.Div(sum, big.NewInt(2))
}

func toGwei(v *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), gwei).Float64()
	return f
}

// volatility 总体标准差 / 均值, 上限 1.0
func volatility(values []*big.Int) float64 {
	if len(values) == 0 {
		return 0
	}
	floats := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		floats[i] = toGwei(v)
		sum += floats[i]
	}
	avg := sum / float64(len(floats))
	if avg == 0 {
		return 0
	}
	var variance float64
	for _, f := range floats {
		variance += (f - avg) * (f - avg)
	}
	variance /= float64(len(floats))
	return math.Min(math.Sqrt(variance)/avg, maxVolatility)
}

// trend 比较最近 10 个样本与之前 10 个样本的均值
func trend(values []*big.Int) model.TrendDirection {
	n := len(values)
	if n < trendMinSamples {
		return model.TrendStable
	}
	recent := toGwei(mean(values[n-trendWindow:]))
	previous := toGwei(mean(values[n-2*trendWindow : n-trendWindow]))
	if previous == 0 {
		return model.TrendStable
	}
	change := (recent - previous) / previous
	switch {
	case change > trendChangePercent:
		return model.TrendRising
	case change < -trendChangePercent:
		return model.TrendFalling
	default:
		return model.TrendStable
	}
}

// avgGasUsedRatio 整个窗口的平均区块利用率
func avgGasUsedRatio(history []model.GasDataPoint) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, p := range history {
		sum += p.GasUsedRatio
	}
	return sum / float64(len(history))
}

func congestion(history []model.GasDataPoint, threshold float64) model.CongestionLevel {
	ratio := avgGasUsedRatio(history)
	switch {
	case ratio < congestionMedium:
		return model.CongestionLow
	case ratio < threshold:
		return model.CongestionMedium
	case ratio < congestionCritical:
		return model.CongestionHigh
	default:
		return model.CongestionCritical
	}
}
