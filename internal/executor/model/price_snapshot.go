package model

import (
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PriceSnapshot 聚合价格快照表
type PriceSnapshot struct {
	ID              int64           `gorm:"primaryKey" json:"id"`
	TokenAddress    string          `gorm:"column:token_address;type:varchar(100);not null;index:idx_token_time" json:"token_address"`
	Symbol          string          `gorm:"column:symbol;type:varchar(64)" json:"symbol"`
	Price           decimal.Decimal `gorm:"column:price;type:decimal(50,20);not null;default:0" json:"price"` // USD
	Volume24h       decimal.Decimal `gorm:"column:volume_24h;type:decimal(50,20);not null;default:0" json:"volume_24h"`
	Confidence      float64         `gorm:"column:confidence;not null;default:0" json:"confidence"`
	Volatility      float64         `gorm:"column:volatility;not null;default:0" json:"volatility"`
	OutlierDetected bool            `gorm:"column:outlier_detected;not null;default:false" json:"outlier_detected"`
	Sources         pq.StringArray  `gorm:"column:sources;type:text[]" json:"sources"`
	Timestamp       int64           `gorm:"column:timestamp;not null;index:idx_token_time" json:"timestamp"` // 毫秒时间戳
}

func (p *PriceSnapshot) TableName() string {
	return "executor.t_price_snapshot"
}

func NewPriceSnapshot(price AggregatedPrice) PriceSnapshot {
	sources := make(pq.StringArray, 0, len(price.Sources))
	for _, s := range price.Sources {
		sources = append(sources, string(s))
	}
	return PriceSnapshot{
		TokenAddress:    price.TokenAddress,
		Symbol:          price.Symbol,
		Price:           decimal.NewFromFloat(price.PriceUSD),
		Volume24h:       decimal.NewFromFloat(price.Volume24h),
		Confidence:      price.Confidence,
		Volatility:      price.Volatility,
		OutlierDetected: price.OutlierDetected,
		Sources:         sources,
		Timestamp:       price.Timestamp.UnixMilli(),
	}
}
