package pricefeed

import (
	"math"
	"time"

	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"
)

const (
	minOutlierSources = 3
	flatOutlierBand   = 0.01
)

// Aggregate 融合多个数据源的报价, 离群源不参与价格和置信度计算
func Aggregate(prices []model.PriceData, outlierThreshold float64) (model.AggregatedPrice, error) {
	valid := make([]model.PriceData, 0, len(prices))
	for _, p := range prices {
		if p.PriceUSD > 0 && !math.IsNaN(p.PriceUSD) && !math.IsInf(p.PriceUSD, 0) {
			valid = append(valid, p)
		}
	}
	if len(valid) == 0 {
		return model.AggregatedPrice{}, errs.Validationf("pricefeed.aggregate", "no usable price among %d quotes", len(prices))
	}

	raw := make([]float64, len(valid))
	for i, p := range valid {
		raw[i] = p.PriceUSD
	}
	outliers := detectOutliers(raw, outlierThreshold)

	contributing := make([]model.PriceData, 0, len(valid))
	var outlierSources []model.PriceSource
	for i, p := range valid {
		if outliers[i] {
			outlierSources = append(outlierSources, p.Source)
			continue
		}
		contributing = append(contributing, p)
	}
	if len(contributing) == 0 {
		contributing = valid
	}

	var (
		weightSum, weighted, plainSum float64
		volumeSum, changeSum, confSum float64
		capSum                        float64
		capCount                      int
	)
	for _, p := range contributing {
		weightSum += p.Confidence
		weighted += p.PriceUSD * p.Confidence
		plainSum += p.PriceUSD
		volumeSum += p.Volume24h
		changeSum += p.Change24h
		confSum += p.Confidence
		if p.MarketCap != nil {
			capSum += *p.MarketCap
			capCount++
		}
	}
	n := float64(len(contributing))

	price := plainSum / n
	if weightSum > 0 {
		price = weighted / weightSum
	}

	var marketCap *float64
	if capCount > 0 {
		v := capSum / float64(capCount)
		marketCap = &v
	}

	sources := make([]model.PriceSource, 0, len(contributing))
	var latest time.Time
	for _, p := range contributing {
		sources = append(sources, p.Source)
		if p.Timestamp.After(latest) {
			latest = p.Timestamp
		}
	}

	return model.AggregatedPrice{
		TokenAddress:    valid[0].TokenAddress,
		Symbol:          firstSymbol(valid),
		PriceUSD:        price,
		Volume24h:       volumeSum / n,
		MarketCap:       marketCap,
		Change24h:       changeSum / n,
		SourceCount:     len(valid),
		Sources:         sources,
		OutlierSources:  outlierSources,
		Confidence:      confSum / n,
		Volatility:      coefficientOfVariation(raw),
		OutlierDetected: len(outlierSources) > 0,
		Timestamp:       latest,
	}, nil
}

func firstSymbol(prices []model.PriceData) string {
	for _, p := range prices {
		if p.Symbol != "" {
			return p.Symbol
		}
	}
	return ""
}

// coefficientOfVariation 样本标准差 / 均值, 少于 2 个报价为 0
func coefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	avg, std := meanStd(values)
	if avg == 0 {
		return 0
	}
	return std / avg
}

// detectOutliers 每个报价与其余报价的均值和样本标准差比较 (留一法)
// 少于 3 个报价不做判断; 其余报价完全一致时按相对偏离 1% 判断
func detectOutliers(values []float64, threshold float64) []bool {
	flags := make([]bool, len(values))
	if len(values) < minOutlierSources || threshold <= 0 {
		return flags
	}

	others := make([]float64, 0, len(values)-1)
	for i, v := range values {
		others = others[:0]
		for j, o := range values {
			if j != i {
				others = append(others, o)
			}
		}
		avg, std := meanStd(others)
		deviation := math.Abs(v - avg)
		if std == 0 {
			flags[i] = avg != 0 && deviation/avg > flatOutlierBand
			continue
		}
		flags[i] = deviation/std > threshold
	}
	return flags
}

func meanStd(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))
	if len(values) < 2 {
		return avg, 0
	}
	var variance float64
	for _, v := range values {
		variance += (v - avg) * (v - avg)
	}
	return avg, math.Sqrt(variance / float64(len(values)-1))
}
