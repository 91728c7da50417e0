package coingecko

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cryptojackal/internal/executor/config"
	"cryptojackal/pkg/httpclient"

	"go.uber.org/zap"
)

const API_KEY_HEADER = "x-cg-demo-api-key"

type CoinGeckoClient struct {
	baseURL    string
	platform   string
	httpClient *httpclient.HTTPClient
	logger     *zap.Logger
}

func NewCoinGeckoClient(cfg config.CoinGeckoConfig, logger *zap.Logger) *CoinGeckoClient {
	httpCfg := httpclient.HTTPClientConfig{
		Timeout:      time.Duration(cfg.Timeout) * time.Second,
		RateLimit:    cfg.RateLimit,
		APIKeyHeader: API_KEY_HEADER,
		APIKey:       cfg.APIKey,
	}

	return &CoinGeckoClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		platform:   cfg.Platform,
		httpClient: httpclient.NewHTTPClient(httpCfg, logger),
		logger:     logger,
	}
}

// GetTokenPrice 查询单个合约的 USD 价格, 未收录时返回 ok=false
func (c *CoinGeckoClient) GetTokenPrice(ctx context.Context, tokenAddr string) (TokenPrice, bool, error) {
	url := fmt.Sprintf("%s/simple/token_price/%s", c.baseURL, c.platform)
	params := map[string]string{
		"contract_addresses":      tokenAddr,
		"vs_currencies":           "usd",
		"include_market_cap":      "true",
		"include_24hr_vol":        "true",
		"include_24hr_change":     "true",
		"include_last_updated_at": "true",
	}

	var resp TokenPriceResp
	if err := c.httpClient.Get(ctx, url, params, nil, &resp); err != nil {
		return TokenPrice{}, false, fmt.Errorf("fetch coingecko token price failed, token: %s, error: %w", tokenAddr, err)
	}
	price, ok := resp[strings.ToLower(tokenAddr)]
	return price, ok, nil
}

func (c *CoinGeckoClient) Close() error {
	return c.httpClient.Close()
}
