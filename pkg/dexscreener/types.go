package dexscreener

type TokensResp struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}

type Pair struct {
	ChainID     string     `json:"chainId"`
	DexID       string     `json:"dexId"`
	PairAddress string     `json:"pairAddress"`
	BaseToken   Token      `json:"baseToken"`
	QuoteToken  Token      `json:"quoteToken"`
	PriceNative string     `json:"priceNative"`
	PriceUsd    string     `json:"priceUsd"` // 字符串, 需要自行解析
	Volume      Periods    `json:"volume"`
	PriceChange Periods    `json:"priceChange"`
	Liquidity   *Liquidity `json:"liquidity"`
	Fdv         *float64   `json:"fdv"`
	MarketCap   *float64   `json:"marketCap"`
}

type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type Periods struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

type Liquidity struct {
	USD   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}
