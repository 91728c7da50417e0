package moralis

// TokenPrice /erc20/{address}/price 返回, 数值字段大多是字符串
type TokenPrice struct {
	TokenName             string  `json:"tokenName"`
	TokenSymbol           string  `json:"tokenSymbol"`
	TokenDecimals         string  `json:"tokenDecimals"`
	TokenAddress          string  `json:"tokenAddress"`
	UsdPrice              float64 `json:"usdPrice"`
	UsdPriceFormatted     string  `json:"usdPriceFormatted"`
	PercentChange24h      string  `json:"24hrPercentChange"`
	ExchangeName          string  `json:"exchangeName"`
	ExchangeAddress       string  `json:"exchangeAddress"`
	PairAddress           string  `json:"pairAddress"`
	PairTotalLiquidityUsd string  `json:"pairTotalLiquidityUsd"`
	PossibleSpam          bool    `json:"possibleSpam"`
	VerifiedContract      bool    `json:"verifiedContract"`
}
