package model

import "time"

type PriceSource string

const (
	SOURCE_COINGECKO     PriceSource = "coingecko"
	SOURCE_DEXSCREENER   PriceSource = "dexscreener"
	SOURCE_UNISWAP_V2    PriceSource = "uniswap_v2"
	SOURCE_MORALIS       PriceSource = "moralis"
	SOURCE_COINMARKETCAP PriceSource = "coinmarketcap"
	SOURCE_CUSTOM        PriceSource = "custom"
)

// PriceData 单个数据源的报价
type PriceData struct {
	TokenAddress string      `json:"token_address"`
	Symbol       string      `json:"symbol"`
	PriceUSD     float64     `json:"price_usd"`
	Volume24h    float64     `json:"volume_24h"`
	MarketCap    *float64    `json:"market_cap,omitempty"`
	Change24h    float64     `json:"change_24h"` // 百分比
	Source       PriceSource `json:"source"`
	Timestamp    time.Time   `json:"timestamp"`
	Confidence   float64     `json:"confidence"`
}

// AggregatedPrice 多源融合后的价格
type AggregatedPrice struct {
	TokenAddress    string        `json:"token_address"`
	Symbol          string        `json:"symbol"`
	PriceUSD        float64       `json:"price_usd"`
	Volume24h       float64       `json:"volume_24h"`
	MarketCap       *float64      `json:"market_cap,omitempty"`
	Change24h       float64       `json:"change_24h"`
	SourceCount     int           `json:"source_count"`
	Sources         []PriceSource `json:"sources"`
	OutlierSources  []PriceSource `json:"outlier_sources,omitempty"`
	Confidence      float64       `json:"confidence"`
	Volatility      float64       `json:"volatility"`
	OutlierDetected bool          `json:"outlier_detected"`
	Timestamp       time.Time     `json:"timestamp"`
}

type AlertType string

const (
	ALERT_PRICE_SPIKE      AlertType = "price_spike"
	ALERT_PRICE_DROP       AlertType = "price_drop"
	ALERT_VOLUME_SPIKE     AlertType = "volume_spike"
	ALERT_VOLATILITY       AlertType = "volatility_alert"
	ALERT_OUTLIER_DETECTED AlertType = "outlier_detected"
)

type PriceAlert struct {
	ID            string    `json:"id"`
	TokenAddress  string    `json:"token_address"`
	Symbol        string    `json:"symbol"`
	Type          AlertType `json:"type"`
	Message       string    `json:"message"`
	CurrentValue  float64   `json:"current_value"`
	PreviousValue float64   `json:"previous_value"`
	ChangePercent float64   `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
}
