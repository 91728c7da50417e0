package moralis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cryptojackal/internal/executor/config"
	"cryptojackal/pkg/httpclient"

	"go.uber.org/zap"
)

type MoralisClient struct {
	baseURL    string
	chain      string
	httpClient *httpclient.HTTPClient
	logger     *zap.Logger
}

func NewMoralisClient(cfg config.MoralisConfig, logger *zap.Logger) *MoralisClient {
	// 创建HTTP客户端配置, 默认使用 X-API-Key 头
	httpCfg := httpclient.HTTPClientConfig{
		Timeout:   time.Duration(cfg.Timeout) * time.Second,
		RateLimit: cfg.RateLimit,
		APIKey:    cfg.APIKey,
	}

	return &MoralisClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		chain:      cfg.Chain,
		httpClient: httpclient.NewHTTPClient(httpCfg, logger),
		logger:     logger,
	}
}

// GetTokenPrice 查询 ERC20 的 USD 价格, 未收录的 token 返回 404
func (m *MoralisClient) GetTokenPrice(ctx context.Context, tokenAddr string) (TokenPrice, error) {
	url := fmt.Sprintf("%s/api/v2.2/erc20/%s/price", m.baseURL, tokenAddr)
	params := map[string]string{
		"chain":   m.chain,
		"include": "percent_change",
	}

	var resp TokenPrice
	if err := m.httpClient.Get(ctx, url, params, nil, &resp); err != nil {
		return TokenPrice{}, fmt.Errorf("fetch moralis token price failed, token: %s, error: %w", tokenAddr, err)
	}
	return resp, nil
}

func (m *MoralisClient) Close() error {
	return m.httpClient.Close()
}
