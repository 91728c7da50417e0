package pricefeed

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"

	"cryptojackal/internal/executor/config"
	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"
	"cryptojackal/pkg/coingecko"
	"cryptojackal/pkg/dexscreener"
	"cryptojackal/pkg/httpclient"
	"cryptojackal/pkg/moralis"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type fakeCoinGecko struct {
	price coingecko.TokenPrice
	ok    bool
	err   error
}

func (f fakeCoinGecko) GetTokenPrice(context.Context, string) (coingecko.TokenPrice, bool, error) {
	return f.price, f.ok, f.err
}

type fakeDexScreener struct {
	pair dexscreener.Pair
	ok   bool
	err  error
}

func (f fakeDexScreener) GetBestPair(context.Context, string) (dexscreener.Pair, bool, error) {
	return f.pair, f.ok, f.err
}

type fakeMoralis struct {
	price moralis.TokenPrice
	err   error
}

func (f fakeMoralis) GetTokenPrice(context.Context, string) (moralis.TokenPrice, error) {
	return f.price, f.err
}

func TestCoinGeckoSource(t *testing.T) {
	src := NewCoinGeckoSource(fakeCoinGecko{price: coingecko.TokenPrice{USD: 7.5, USD24hVol: 10, LastUpdatedAt: 1760000000}, ok: true}, 0.9)
	data, err := src.FetchPrice(context.Background(), token)
	if err != nil {
		t.Fatalf("FetchPrice: %v", err)
	}
	if data.PriceUSD != 7.5 || data.Confidence != 0.9 || data.Timestamp.Unix() != 1760000000 {
		t.Errorf("unexpected data %+v", data)
	}

	tests := []struct {
		name string
		api  fakeCoinGecko
		kind errs.Kind
	}{
		{"not listed", fakeCoinGecko{}, errs.KindValidation},
		{"bad request", fakeCoinGecko{err: &httpclient.HTTPError{Code: 400}}, errs.KindValidation},
		{"rate limited", fakeCoinGecko{err: &httpclient.HTTPError{Code: 429}}, errs.KindNetwork},
		{"transport", fakeCoinGecko{err: errors.New("connection reset")}, errs.KindNetwork},
	}
	for _, tt := range tests {
		_, err := NewCoinGeckoSource(tt.api, 0.9).FetchPrice(context.Background(), token)
		if !errs.Is(err, tt.kind) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.kind)
		}
	}
}

func TestDexScreenerSource(t *testing.T) {
	mc := 1e9
	pair := dexscreener.Pair{
		PairAddress: "0xpair",
		BaseToken:   dexscreener.Token{Symbol: "UNI"},
		PriceUsd:    "7.25",
		Volume:      dexscreener.Periods{H24: 5000},
		PriceChange: dexscreener.Periods{H24: -3},
		Liquidity:   &dexscreener.Liquidity{USD: 1e6},
		Fdv:         &mc,
	}
	data, err := NewDexScreenerSource(fakeDexScreener{pair: pair, ok: true}, 0.75).FetchPrice(context.Background(), token)
	if err != nil {
		t.Fatalf("FetchPrice: %v", err)
	}
	if data.PriceUSD != 7.25 || data.Symbol != "UNI" || data.Volume24h != 5000 || data.Change24h != -3 {
		t.Errorf("unexpected data %+v", data)
	}
	if data.MarketCap == nil || *data.MarketCap != 1e9 {
		t.Errorf("fdv should back-fill market cap")
	}

	pair.PriceUsd = "n/a"
	if _, err := NewDexScreenerSource(fakeDexScreener{pair: pair, ok: true}, 0.75).FetchPrice(context.Background(), token); !errs.Is(err, errs.KindValidation) {
		t.Errorf("bad priceUsd: err = %v, want validation", err)
	}
	pair.PriceUsd = "1"
	pair.Liquidity = &dexscreener.Liquidity{}
	if _, err := NewDexScreenerSource(fakeDexScreener{pair: pair, ok: true}, 0.75).FetchPrice(context.Background(), token); !errs.Is(err, errs.KindValidation) {
		t.Errorf("zero liquidity: err = %v, want validation", err)
	}
}

// fakePairChain 模拟 factory + pair + ERC20 合约
type fakePairChain struct {
	pair     common.Address
	token0   common.Address
	reserve0 *big.Int
	reserve1 *big.Int
	decimals int64
}

func selector(sig string) string {
	return common.Bytes2Hex(crypto.Keccak256([]byte(sig))[:4])
}

func (f *fakePairChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	word := func(v *big.Int) []byte { return common.LeftPadBytes(v.Bytes(), 32) }
	switch common.Bytes2Hex(msg.Data[:4]) {
	case selector("getPair(address,address)"):
		return common.LeftPadBytes(f.pair.Bytes(), 32), nil
	case selector("token0()"):
		return common.LeftPadBytes(f.token0.Bytes(), 32), nil
	case selector("getReserves()"):
		out := append(word(f.reserve0), word(f.reserve1)...)
		return append(out, word(big.NewInt(0))...), nil
	case selector("decimals()"):
		return word(big.NewInt(f.decimals)), nil
	}
	return nil, errors.New("execution reverted")
}

func TestUniswapV2Source(t *testing.T) {
	tokenAddr := common.HexToAddress(token)
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	// 1000 个 18 位精度 token 对 2000 USDC
	tokenReserve, _ := new(big.Int).SetString("1000000000000000000000", 10)
	quoteReserve := big.NewInt(2_000_000_000)

	tests := []struct {
		name   string
		token0 common.Address
		r0, r1 *big.Int
	}{
		{"token is token0", tokenAddr, tokenReserve, quoteReserve},
		{"token is token1", usdc, quoteReserve, tokenReserve},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &fakePairChain{pair: common.HexToAddress("0xbeef"), token0: tt.token0, reserve0: tt.r0, reserve1: tt.r1, decimals: 18}
			src := NewUniswapV2Source(chain, common.HexToAddress("0x01"), usdc, 6, 0.8)
			data, err := src.FetchPrice(context.Background(), token)
			if err != nil {
				t.Fatalf("FetchPrice: %v", err)
			}
			if math.Abs(data.PriceUSD-2) > 1e-12 {
				t.Errorf("price = %v, want 2", data.PriceUSD)
			}
		})
	}

	zero := &fakePairChain{pair: common.HexToAddress("0xbeef"), token0: tokenAddr, reserve0: big.NewInt(0), reserve1: quoteReserve, decimals: 18}
	if _, err := NewUniswapV2Source(zero, common.HexToAddress("0x01"), usdc, 6, 0.8).FetchPrice(context.Background(), token); !errs.Is(err, errs.KindValidation) {
		t.Errorf("zero reserves: err = %v, want validation", err)
	}

	noPair := &fakePairChain{decimals: 18}
	if _, err := NewUniswapV2Source(noPair, common.HexToAddress("0x01"), usdc, 6, 0.8).FetchPrice(context.Background(), token); !errs.Is(err, errs.KindValidation) {
		t.Errorf("missing pair: err = %v, want validation", err)
	}
}

func TestNewSourcesConfidence(t *testing.T) {
	cfg := config.PriceFeedConfig{SourceConfidence: map[string]float64{
		"coingecko":  0.6,
		"uniswap_v2": 1.5, // 越界回退默认值
	}}
	sources := NewSources(cfg, config.ChainConfig{}, Clients{
		CoinGecko:   fakeCoinGecko{},
		DexScreener: fakeDexScreener{},
		Moralis:     fakeMoralis{},
	})
	want := map[model.PriceSource]float64{
		model.SOURCE_COINGECKO:   0.6,
		model.SOURCE_DEXSCREENER: 0.75,
		model.SOURCE_UNISWAP_V2:  0.8,
		model.SOURCE_MORALIS:     0.8,
	}
	if len(sources) != len(want) {
		t.Fatalf("sources = %d, want %d", len(sources), len(want))
	}
	for _, s := range sources {
		var got float64
		switch src := s.(type) {
		case *CoinGeckoSource:
			got = src.confidence
		case *DexScreenerSource:
			got = src.confidence
		case *UniswapV2Source:
			got = src.confidence
		case *MoralisSource:
			got = src.confidence
		}
		if got != want[s.Name()] {
			t.Errorf("%s confidence = %v, want %v", s.Name(), got, want[s.Name()])
		}
	}
}

func TestMoralisSource(t *testing.T) {
	src := NewMoralisSource(fakeMoralis{price: moralis.TokenPrice{TokenSymbol: "UNI", UsdPrice: 7.41, PercentChange24h: "-1.25"}}, 0.8)
	data, err := src.FetchPrice(context.Background(), token)
	if err != nil {
		t.Fatalf("FetchPrice: %v", err)
	}
	if data.PriceUSD != 7.41 || data.Change24h != -1.25 || data.Symbol != "UNI" || data.Source != model.SOURCE_MORALIS {
		t.Errorf("unexpected data %+v", data)
	}

	tests := []struct {
		name string
		api  fakeMoralis
		kind errs.Kind
	}{
		{"spam", fakeMoralis{price: moralis.TokenPrice{UsdPrice: 1, PossibleSpam: true}}, errs.KindValidation},
		{"zero price", fakeMoralis{price: moralis.TokenPrice{}}, errs.KindValidation},
		{"not found", fakeMoralis{err: &httpclient.HTTPError{Code: 404}}, errs.KindValidation},
		{"server error", fakeMoralis{err: &httpclient.HTTPError{Code: 502}}, errs.KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMoralisSource(tt.api, 0.8).FetchPrice(context.Background(), token)
			if !errs.Is(err, tt.kind) {
				t.Errorf("error = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestNewSourcesWithoutMoralis(t *testing.T) {
	sources := NewSources(config.PriceFeedConfig{}, config.ChainConfig{}, Clients{CoinGecko: fakeCoinGecko{}, DexScreener: fakeDexScreener{}})
	for _, s := range sources {
		if s.Name() == model.SOURCE_MORALIS {
			t.Fatal("moralis source created without a client")
		}
	}
}
