package pricefeed

import (
	"context"
	"fmt"
	"time"

	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"
	"cryptojackal/pkg/dexscreener"

	"github.com/shopspring/decimal"
)

type dexScreenerAPI interface {
	GetBestPair(ctx context.Context, tokenAddr string) (dexscreener.Pair, bool, error)
}

type DexScreenerSource struct {
	api        dexScreenerAPI
	confidence float64
	now        func() time.Time
}

func NewDexScreenerSource(api dexScreenerAPI, confidence float64) *DexScreenerSource {
	return &DexScreenerSource{api: api, confidence: confidence, now: time.Now}
}

func (s *DexScreenerSource) Name() model.PriceSource { return model.SOURCE_DEXSCREENER }

func (s *DexScreenerSource) FetchPrice(ctx context.Context, token string) (model.PriceData, error) {
	const op = "pricefeed.dexscreener"
	pair, ok, err := s.api.GetBestPair(ctx, token)
	if err != nil {
		return model.PriceData{}, classify(op, err)
	}
	if !ok {
		return model.PriceData{}, errs.Validation(op, fmt.Errorf("no pair for %s: %w", token, errs.ErrNotFound))
	}
	if pair.Liquidity != nil && pair.Liquidity.USD <= 0 {
		return model.PriceData{}, errs.Validationf(op, "pair %s has zero liquidity", pair.PairAddress)
	}
	price, err := decimal.NewFromString(pair.PriceUsd)
	if err != nil || !price.IsPositive() {
		return model.PriceData{}, errs.Validationf(op, "bad priceUsd %q for pair %s", pair.PriceUsd, pair.PairAddress)
	}

	marketCap := pair.MarketCap
	if marketCap == nil {
		marketCap = pair.Fdv
	}
	return model.PriceData{
		TokenAddress: token,
		Symbol:       pair.BaseToken.Symbol,
		PriceUSD:     price.InexactFloat64(),
		Volume24h:    pair.Volume.H24,
		MarketCap:    marketCap,
		Change24h:    pair.PriceChange.H24,
		Source:       model.SOURCE_DEXSCREENER,
		Timestamp:    s.now(),
		Confidence:   s.confidence,
	}, nil
}
