package pricefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"
	"cryptojackal/pkg/utils/onchain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// UniswapV2Source 以 token/quote 交易对储备量计算价格, quote 视为 1 USD
type UniswapV2Source struct {
	caller        ethereum.ContractCaller
	factory       common.Address
	quote         common.Address
	quoteDecimals uint8
	confidence    float64
	now           func() time.Time

	decimals sync.Map // common.Address -> uint8
}

func NewUniswapV2Source(caller ethereum.ContractCaller, factory, quote common.Address, quoteDecimals uint8, confidence float64) *UniswapV2Source {
	return &UniswapV2Source{
		caller:        caller,
		factory:       factory,
		quote:         quote,
		quoteDecimals: quoteDecimals,
		confidence:    confidence,
		now:           time.Now,
	}
}

func (s *UniswapV2Source) Name() model.PriceSource { return model.SOURCE_UNISWAP_V2 }

func (s *UniswapV2Source) FetchPrice(ctx context.Context, token string) (model.PriceData, error) {
	const op = "pricefeed.uniswap_v2"
	if !common.IsHexAddress(token) {
		return model.PriceData{}, errs.Validationf(op, "invalid token address %q", token)
	}
	tokenAddr := common.HexToAddress(token)

	pair, err := onchain.GetPair(ctx, s.caller, s.factory, tokenAddr, s.quote)
	if err != nil {
		return model.PriceData{}, errs.Network(op, err)
	}
	if pair == (common.Address{}) {
		return model.PriceData{}, errs.Validation(op, fmt.Errorf("no pair for %s: %w", token, errs.ErrNotFound))
	}
	token0, err := onchain.Token0(ctx, s.caller, pair)
	if err != nil {
		return model.PriceData{}, errs.Network(op, err)
	}
	reserve0, reserve1, err := onchain.GetReserves(ctx, s.caller, pair)
	if err != nil {
		return model.PriceData{}, errs.Network(op, err)
	}
	if reserve0.Sign() == 0 || reserve1.Sign() == 0 {
		return model.PriceData{}, errs.Validationf(op, "pair %s has zero reserves", pair.Hex())
	}
	tokenDecimals, err := s.tokenDecimals(ctx, tokenAddr)
	if err != nil {
		return model.PriceData{}, errs.Network(op, err)
	}

	tokenReserve, quoteReserve := reserve0, reserve1
	if token0 != tokenAddr {
		tokenReserve, quoteReserve = reserve1, reserve0
	}
	tokenAmount := decimal.NewFromBigInt(tokenReserve, -int32(tokenDecimals))
	quoteAmount := decimal.NewFromBigInt(quoteReserve, -int32(s.quoteDecimals))
	price := quoteAmount.Div(tokenAmount)

	return model.PriceData{
		TokenAddress: token,
		PriceUSD:     price.InexactFloat64(),
		Source:       model.SOURCE_UNISWAP_V2,
		Timestamp:    s.now(),
		Confidence:   s.confidence,
	}, nil
}

func (s *UniswapV2Source) tokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	if v, ok := s.decimals.Load(token); ok {
		return v.(uint8), nil
	}
	d, err := onchain.Decimals(ctx, s.caller, token)
	if err != nil {
		return 0, err
	}
	s.decimals.Store(token, d)
	return d, nil
}
