package pricefeed

import (
	"context"
	"strconv"
	"time"

	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"
	"cryptojackal/pkg/moralis"
)

type moralisAPI interface {
	GetTokenPrice(ctx context.Context, tokenAddr string) (moralis.TokenPrice, error)
}

// MoralisSource 报价来自 moralis 选出的流动性最好的池子
type MoralisSource struct {
	api        moralisAPI
	confidence float64
	now        func() time.Time
}

func NewMoralisSource(api moralisAPI, confidence float64) *MoralisSource {
	return &MoralisSource{api: api, confidence: confidence, now: time.Now}
}

func (s *MoralisSource) Name() model.PriceSource { return model.SOURCE_MORALIS }

func (s *MoralisSource) FetchPrice(ctx context.Context, token string) (model.PriceData, error) {
	const op = "pricefeed.moralis"
	price, err := s.api.GetTokenPrice(ctx, token)
	if err != nil {
		return model.PriceData{}, classify(op, err)
	}
	if price.PossibleSpam {
		return model.PriceData{}, errs.Validationf(op, "token %s flagged as possible spam", token)
	}
	if price.UsdPrice <= 0 {
		return model.PriceData{}, errs.Validationf(op, "bad usdPrice %v for %s", price.UsdPrice, token)
	}

	// 涨跌幅缺失时按 0 处理
	change, _ := strconv.ParseFloat(price.PercentChange24h, 64)
	return model.PriceData{
		TokenAddress: token,
		Symbol:       price.TokenSymbol,
		PriceUSD:     price.UsdPrice,
		Change24h:    change,
		Source:       model.SOURCE_MORALIS,
		Timestamp:    s.now(),
		Confidence:   s.confidence,
	}, nil
}
