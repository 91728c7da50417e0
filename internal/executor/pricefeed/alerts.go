package pricefeed

import (
	"fmt"
	"math"
	"time"

	"cryptojackal/internal/executor/config"
	"cryptojackal/internal/executor/model"

	"github.com/google/uuid"
)

// detectAlerts 对比上一次聚合结果, hasPrev 为 false 时只检查当前波动率和离群
func detectAlerts(prev model.AggregatedPrice, hasPrev bool, cur model.AggregatedPrice, th config.AlertThresholds, now time.Time) []model.PriceAlert {
	var alerts []model.PriceAlert
	newAlert := func(t model.AlertType, current, previous, change float64, msg string) {
		alerts = append(alerts, model.PriceAlert{
			ID:            uuid.NewString(),
			TokenAddress:  cur.TokenAddress,
			Symbol:        cur.Symbol,
			Type:          t,
			Message:       msg,
			CurrentValue:  current,
			PreviousValue: previous,
			ChangePercent: change,
			Timestamp:     now,
		})
	}

	if hasPrev && prev.PriceUSD > 0 {
		change := (cur.PriceUSD - prev.PriceUSD) / prev.PriceUSD * 100
		if math.Abs(change) > th.PriceChangePercent {
			kind := model.ALERT_PRICE_SPIKE
			if change < 0 {
				kind = model.ALERT_PRICE_DROP
			}
			newAlert(kind, cur.PriceUSD, prev.PriceUSD, change,
				fmt.Sprintf("price moved %.2f%% from %.6f to %.6f", change, prev.PriceUSD, cur.PriceUSD))
		}
	}

	if hasPrev && prev.Volume24h > 0 {
		change := (cur.Volume24h - prev.Volume24h) / prev.Volume24h * 100
		if math.Abs(change) > th.VolumeChangePercent {
			newAlert(model.ALERT_VOLUME_SPIKE, cur.Volume24h, prev.Volume24h, change,
				fmt.Sprintf("24h volume moved %.2f%%", change))
		}
	}

	if th.Volatility > 0 && cur.Volatility > th.Volatility {
		newAlert(model.ALERT_VOLATILITY, cur.Volatility, prev.Volatility, cur.Volatility*100,
			fmt.Sprintf("cross-source volatility %.4f above %.4f", cur.Volatility, th.Volatility))
	}

	if cur.OutlierDetected {
		newAlert(model.ALERT_OUTLIER_DETECTED, cur.PriceUSD, prev.PriceUSD, 0,
			fmt.Sprintf("outlier sources %v excluded from %d quotes", cur.OutlierSources, cur.SourceCount))
	}
	return alerts
}
