package model

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// GasDataPoint 单个区块的 gas 采样
type GasDataPoint struct {
	Timestamp    time.Time
	BaseFee      *big.Int // wei
	PriorityFee  *big.Int // wei
	BlockNumber  uint64
	GasUsedRatio float64
}

type TrendDirection uint8

const (
	TrendStable TrendDirection = iota
	TrendRising
	TrendFalling
)

func (t TrendDirection) String() string {
	switch t {
	case TrendRising:
		return "rising"
	case TrendFalling:
		return "falling"
	default:
		return "stable"
	}
}

type CongestionLevel uint8

const (
	CongestionLow CongestionLevel = iota
	CongestionMedium
	CongestionHigh
	CongestionCritical
)

func (c CongestionLevel) String() string {
	switch c {
	case CongestionLow:
		return "low"
	case CongestionMedium:
		return "medium"
	case CongestionHigh:
		return "high"
	default:
		return "critical"
	}
}

// GasStatistics 由当前历史窗口推导, 不单独持久化
type GasStatistics struct {
	AvgBaseFee        *big.Int
	AvgPriorityFee    *big.Int
	MedianBaseFee     *big.Int
	MedianPriorityFee *big.Int
	Volatility        float64 // 变异系数, 上限 1.0
	Trend             TrendDirection
	Congestion        CongestionLevel
	AvgGasUsedRatio   float64
	SampleCount       int
	LatestBlock       uint64
	UpdatedAt         time.Time
}

type GasStrategyKind uint8

const (
	GasConservative GasStrategyKind = iota
	GasStandard
	GasAggressive
	GasEmergency
	GasCustom
)

func (k GasStrategyKind) String() string {
	switch k {
	case GasConservative:
		return "conservative"
	case GasStandard:
		return "standard"
	case GasAggressive:
		return "aggressive"
	case GasEmergency:
		return "emergency"
	default:
		return "custom"
	}
}

// GasStrategy Custom 时使用 MaxFee/PriorityFee
type GasStrategy struct {
	Kind        GasStrategyKind
	MaxFee      *big.Int
	PriorityFee *big.Int
}

func ConservativeGas() GasStrategy { return GasStrategy{Kind: GasConservative} }
func StandardGas() GasStrategy     { return GasStrategy{Kind: GasStandard} }
func AggressiveGas() GasStrategy   { return GasStrategy{Kind: GasAggressive} }
func EmergencyGas() GasStrategy    { return GasStrategy{Kind: GasEmergency} }

func CustomGas(maxFee, priorityFee *big.Int) GasStrategy {
	return GasStrategy{Kind: GasCustom, MaxFee: maxFee, PriorityFee: priorityFee}
}

// CacheKey 推荐缓存的 key, custom 策略带上参数
func (s GasStrategy) CacheKey() string {
	if s.Kind != GasCustom {
		return s.Kind.String()
	}
	return fmt.Sprintf("custom:%s:%s", bigString(s.MaxFee), bigString(s.PriorityFee))
}

func (s GasStrategy) String() string {
	return s.CacheKey()
}

// GasRecommendation 针对某个策略的 gas 参数建议
type GasRecommendation struct {
	Strategy              GasStrategy
	BaseFee               *big.Int
	PriorityFee           *big.Int
	MaxFee                *big.Int // BaseFee + PriorityFee
	GasLimit              uint64
	Confidence            float64
	EstimatedCostETH      decimal.Decimal
	EstimatedConfirmation time.Duration
	CreatedAt             time.Time
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
