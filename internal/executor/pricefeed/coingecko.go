package pricefeed

import (
	"context"
	"fmt"
	"time"

	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"
	"cryptojackal/pkg/coingecko"
)

type coinGeckoAPI interface {
	GetTokenPrice(ctx context.Context, tokenAddr string) (coingecko.TokenPrice, bool, error)
}

type CoinGeckoSource struct {
	api        coinGeckoAPI
	confidence float64
	now        func() time.Time
}

func NewCoinGeckoSource(api coinGeckoAPI, confidence float64) *CoinGeckoSource {
	return &CoinGeckoSource{api: api, confidence: confidence, now: time.Now}
}

func (s *CoinGeckoSource) Name() model.PriceSource { return model.SOURCE_COINGECKO }

func (s *CoinGeckoSource) FetchPrice(ctx context.Context, token string) (model.PriceData, error) {
	const op = "pricefeed.coingecko"
	price, ok, err := s.api.GetTokenPrice(ctx, token)
	if err != nil {
		return model.PriceData{}, classify(op, err)
	}
	if !ok || price.USD <= 0 {
		return model.PriceData{}, errs.Validation(op, fmt.Errorf("token %s not listed: %w", token, errs.ErrNotFound))
	}

	ts := s.now()
	if price.LastUpdatedAt > 0 {
		ts = time.Unix(price.LastUpdatedAt, 0)
	}
	return model.PriceData{
		TokenAddress: token,
		PriceUSD:     price.USD,
		Volume24h:    price.USD24hVol,
		MarketCap:    price.USDMarketCap,
		Change24h:    price.USD24hChange,
		Source:       model.SOURCE_COINGECKO,
		Timestamp:    ts,
		Confidence:   s.confidence,
	}, nil
}
