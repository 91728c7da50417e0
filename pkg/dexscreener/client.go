package dexscreener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cryptojackal/internal/executor/config"
	"cryptojackal/pkg/httpclient"

	"go.uber.org/zap"
)

type DexScreenerClient struct {
	baseURL    string
	chainID    string
	httpClient *httpclient.HTTPClient
	logger     *zap.Logger
}

func NewDexScreenerClient(cfg config.DexScreenerConfig, logger *zap.Logger) *DexScreenerClient {
	httpCfg := httpclient.HTTPClientConfig{
		Timeout:   time.Duration(cfg.Timeout) * time.Second,
		RateLimit: cfg.RateLimit,
	}

	return &DexScreenerClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		chainID:    cfg.ChainID,
		httpClient: httpclient.NewHTTPClient(httpCfg, logger),
		logger:     logger,
	}
}

// GetTokenPairs 返回 token 在所有链上的交易对
func (d *DexScreenerClient) GetTokenPairs(ctx context.Context, tokenAddr string) ([]Pair, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", d.baseURL, tokenAddr)
	var resp TokensResp
	if err := d.httpClient.Get(ctx, url, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch dexscreener pairs failed, token: %s, error: %w", tokenAddr, err)
	}
	return resp.Pairs, nil
}

// GetBestPair 当前链上以 token 为 base 且流动性最深的交易对
func (d *DexScreenerClient) GetBestPair(ctx context.Context, tokenAddr string) (Pair, bool, error) {
	pairs, err := d.GetTokenPairs(ctx, tokenAddr)
	if err != nil {
		return Pair{}, false, err
	}
	best, ok := BestPair(pairs, d.chainID, tokenAddr)
	return best, ok, nil
}

func (d *DexScreenerClient) Close() error {
	return d.httpClient.Close()
}

// BestPair 过滤链和 base token 后按 liquidity.usd 取最大
func BestPair(pairs []Pair, chainID, tokenAddr string) (Pair, bool) {
	var (
		best  Pair
		found bool
		depth float64 = -1
	)
	for _, p := range pairs {
		if chainID != "" && p.ChainID != chainID {
			continue
		}
		if !strings.EqualFold(p.BaseToken.Address, tokenAddr) || p.PriceUsd == "" {
			continue
		}
		liq := 0.0
		if p.Liquidity != nil {
			liq = p.Liquidity.USD
		}
		if liq > depth {
			best, depth, found = p, liq, true
		}
	}
	return best, found
}
