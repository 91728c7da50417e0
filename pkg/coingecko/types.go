package coingecko

// TokenPrice /simple/token_price 返回中单个合约的数据
type TokenPrice struct {
	USD           float64  `json:"usd"`
	USDMarketCap  *float64 `json:"usd_market_cap"`
	USD24hVol     float64  `json:"usd_24h_vol"`
	USD24hChange  float64  `json:"usd_24h_change"` // 百分比
	LastUpdatedAt int64    `json:"last_updated_at"`
}

// TokenPriceResp key 为小写合约地址
type TokenPriceResp map[string]TokenPrice
