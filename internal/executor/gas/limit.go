package gas

import (
	"math"
	"strings"
)

const gasLimitSafetyFactor = 1.2

var baseGasLimits = map[string]uint64{
	"transfer":       21000,
	"erc20_transfer": 65000,
	"approval":       50000,
	"swap":           150000,
	"add_liquidity":  200000,
	"complex":        300000,
}

// EstimateGasLimit 按交易类型粗估 gas limit, complexity <= 0 按 1 处理
func EstimateGasLimit(txType string, complexity float64) uint64 {
	base, ok := baseGasLimits[strings.ToLower(txType)]
	if !ok {
		base = 100000
	}
	if complexity <= 0 {
		complexity = 1
	}
	return uint64(math.Round(float64(base) * complexity * gasLimitSafetyFactor))
}
