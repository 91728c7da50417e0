package pricefeed

import (
	"math"
	"testing"
	"time"

	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"
)

func quote(source model.PriceSource, price, confidence float64) model.PriceData {
	return model.PriceData{
		TokenAddress: "0xtoken",
		PriceUSD:     price,
		Volume24h:    1000,
		Source:       source,
		Timestamp:    time.Unix(1760000000, 0),
		Confidence:   confidence,
	}
}

func TestAggregateOutlierPulledTowardMajority(t *testing.T) {
	prices := []model.PriceData{
		quote("a", 100, 0.9),
		quote("b", 101, 0.8),
		quote("c", 99, 0.8),
		quote("d", 100.5, 0.75),
		quote("e", 200, 0.9),
	}
	agg, err := Aggregate(prices, 3.0)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !agg.OutlierDetected {
		t.Fatalf("expected outlier to be detected")
	}
	if len(agg.OutlierSources) != 1 || agg.OutlierSources[0] != "e" {
		t.Errorf("outlier sources = %v, want [e]", agg.OutlierSources)
	}
	if math.Abs(agg.PriceUSD-100) > 1 {
		t.Errorf("fused price %v not pulled toward the majority", agg.PriceUSD)
	}
	if agg.SourceCount != 5 || len(agg.Sources) != 4 {
		t.Errorf("source count = %d, contributing = %d", agg.SourceCount, len(agg.Sources))
	}
	wantConf := (0.9 + 0.8 + 0.8 + 0.75) / 4
	if math.Abs(agg.Confidence-wantConf) > 1e-9 {
		t.Errorf("confidence = %v, want %v", agg.Confidence, wantConf)
	}
	if agg.Volatility <= 0 {
		t.Errorf("volatility should reflect the raw spread, got %v", agg.Volatility)
	}
}

func TestAggregateNoOutlierBelowThreeSources(t *testing.T) {
	agg, err := Aggregate([]model.PriceData{quote("a", 1, 0.5), quote("b", 1000, 0.5)}, 3.0)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if agg.OutlierDetected {
		t.Errorf("outlier detection must be skipped with fewer than 3 sources")
	}
	if agg.PriceUSD != 500.5 {
		t.Errorf("price = %v, want equal-weight mean 500.5", agg.PriceUSD)
	}
}

func TestAggregateWeightsAndMarketCap(t *testing.T) {
	mc := 5000.0
	a := quote("a", 10, 0.9)
	a.MarketCap = &mc
	a.Change24h = 2
	b := quote("b", 20, 0.1)
	b.Volume24h = 3000
	b.Change24h = 4

	agg, err := Aggregate([]model.PriceData{a, b}, 3.0)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if math.Abs(agg.PriceUSD-11) > 1e-9 {
		t.Errorf("weighted price = %v, want 11", agg.PriceUSD)
	}
	if agg.Volume24h != 2000 || agg.Change24h != 3 {
		t.Errorf("volume=%v change=%v, want 2000 and 3", agg.Volume24h, agg.Change24h)
	}
	if agg.MarketCap == nil || *agg.MarketCap != 5000 {
		t.Errorf("market cap must average only reporting sources, got %v", agg.MarketCap)
	}
	if agg.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", agg.Confidence)
	}
}

func TestAggregateIdenticalPrices(t *testing.T) {
	agg, err := Aggregate([]model.PriceData{quote("a", 5, 1), quote("b", 5, 1), quote("c", 5, 1)}, 3.0)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if agg.OutlierDetected || agg.Volatility != 0 {
		t.Errorf("identical quotes: outlier=%v volatility=%v", agg.OutlierDetected, agg.Volatility)
	}
}

func TestAggregateAgreeingQuotes(t *testing.T) {
	tests := []struct {
		name     string
		third    float64
		outliers []model.PriceSource
	}{
		{"rounding difference", 100.0001, nil},
		{"within one percent", 100.9, nil},
		{"far off", 150, []model.PriceSource{"c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg, err := Aggregate([]model.PriceData{quote("a", 100, 0.9), quote("b", 100, 0.9), quote("c", tt.third, 0.9)}, 3.0)
			if err != nil {
				t.Fatalf("Aggregate: %v", err)
			}
			if len(agg.OutlierSources) != len(tt.outliers) {
				t.Fatalf("outlier sources = %v, want %v", agg.OutlierSources, tt.outliers)
			}
			for i := range tt.outliers {
				if agg.OutlierSources[i] != tt.outliers[i] {
					t.Errorf("outlier sources = %v, want %v", agg.OutlierSources, tt.outliers)
				}
			}
			if agg.OutlierDetected != (len(tt.outliers) > 0) {
				t.Errorf("outlier detected = %v", agg.OutlierDetected)
			}
			if want := 3 - len(tt.outliers); len(agg.Sources) != want {
				t.Errorf("contributing = %v, want %d sources", agg.Sources, want)
			}
		})
	}
}

func TestAggregateRejectsEmpty(t *testing.T) {
	_, err := Aggregate([]model.PriceData{quote("a", 0, 1)}, 3.0)
	if !errs.Is(err, errs.KindValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestCoefficientOfVariation(t *testing.T) {
	// 样本标准差 1, 均值 2
	got := coefficientOfVariation([]float64{1, 2, 3})
	want := 1.0 / 2.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("cv = %v, want %v", got, want)
	}
	if coefficientOfVariation([]float64{42}) != 0 {
		t.Errorf("single value cv must be 0")
	}
}
