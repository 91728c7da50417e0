package pricefeed

import (
	"context"
	"errors"

	"cryptojackal/internal/executor/config"
	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"
	"cryptojackal/pkg/httpclient"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Source 单个价格数据源, Validation 错误不会重试
type Source interface {
	Name() model.PriceSource
	FetchPrice(ctx context.Context, token string) (model.PriceData, error)
}

// classify 把 HTTP 客户端错误映射到错误分类
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) && !httpErr.Temporary() {
		return errs.Validation(op, err)
	}
	return errs.Network(op, err)
}

func sourceConfidence(cfg config.PriceFeedConfig, source model.PriceSource, fallback float64) float64 {
	if c, ok := cfg.SourceConfidence[string(source)]; ok && c > 0 && c <= 1 {
		return c
	}
	return fallback
}

// Clients 数据源依赖的外部客户端, Moralis 为空时不创建该数据源
type Clients struct {
	CoinGecko   coinGeckoAPI
	DexScreener dexScreenerAPI
	Moralis     moralisAPI
	Caller      ethereum.ContractCaller
}

// NewSources 按配置构造全部数据源, 是否启用由 Aggregator 过滤
func NewSources(cfg config.PriceFeedConfig, chainCfg config.ChainConfig, clients Clients) []Source {
	sources := []Source{
		NewCoinGeckoSource(clients.CoinGecko, sourceConfidence(cfg, model.SOURCE_COINGECKO, 0.9)),
		NewDexScreenerSource(clients.DexScreener, sourceConfidence(cfg, model.SOURCE_DEXSCREENER, 0.75)),
		NewUniswapV2Source(clients.Caller,
			common.HexToAddress(chainCfg.FactoryAddress),
			common.HexToAddress(chainCfg.QuoteToken),
			chainCfg.QuoteDecimals,
			sourceConfidence(cfg, model.SOURCE_UNISWAP_V2, 0.8)),
	}
	if clients.Moralis != nil {
		sources = append(sources, NewMoralisSource(clients.Moralis, sourceConfidence(cfg, model.SOURCE_MORALIS, 0.8)))
	}
	return sources
}
