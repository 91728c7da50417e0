package model

import "time"

// 优先级阈值
const (
	EMERGENCY_PROFIT_THRESHOLD = 0.20
	CRITICAL_PROFIT_THRESHOLD  = 0.15
	CRITICAL_IMPACT_THRESHOLD  = 0.01
	HIGH_PROFIT_THRESHOLD      = 0.08
	HIGH_IMPACT_THRESHOLD      = 0.02
	NORMAL_PROFIT_THRESHOLD    = 0.03
)

// Opportunity 外部发现的交易机会快照, 由上游写入 kafka
type Opportunity struct {
	TokenAddress   string    `json:"token_address"`
	Symbol         string    `json:"symbol"`
	Decimals       uint8     `json:"decimals"`
	ExpectedProfit float64   `json:"expected_profit"` // 0.20 = 20%
	Volatility     float64   `json:"volatility"`
	Liquidity      float64   `json:"liquidity"` // USD
	PriceImpact    float64   `json:"price_impact"`
	Confidence     float64   `json:"confidence"`
	DetectedAt     time.Time `json:"detected_at"`
}

// PriorityFromOpportunity 按预期收益和价格冲击给出执行优先级, 冲击为 0 视为无冲击
func PriorityFromOpportunity(op Opportunity) OrderPriority {
	switch {
	case op.ExpectedProfit >= EMERGENCY_PROFIT_THRESHOLD:
		return PriorityEmergency
	case op.ExpectedProfit > CRITICAL_PROFIT_THRESHOLD || op.PriceImpact < CRITICAL_IMPACT_THRESHOLD:
		return PriorityCritical
	case op.ExpectedProfit > HIGH_PROFIT_THRESHOLD || op.PriceImpact < HIGH_IMPACT_THRESHOLD:
		return PriorityHigh
	case op.ExpectedProfit > NORMAL_PROFIT_THRESHOLD:
		return PriorityNormal
	default:
		return PriorityLow
	}
}
