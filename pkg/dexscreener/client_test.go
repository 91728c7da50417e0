package dexscreener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"cryptojackal/internal/executor/config"

	"go.uber.org/zap"
)

const link = "0x514910771AF9Ca656af840dff83E8264EcF986CA"

const tokensBody = `{"schemaVersion":"1.0.0","pairs":[
 {"chainId":"ethereum","dexId":"uniswap","pairAddress":"0xa1","baseToken":{"address":"0x514910771af9ca656af840dff83e8264ecf986ca","symbol":"LINK"},"priceUsd":"14.10","volume":{"h24":1000},"priceChange":{"h24":1.5},"liquidity":{"usd":50000}},
 {"chainId":"ethereum","dexId":"sushiswap","pairAddress":"0xa2","baseToken":{"address":"0x514910771AF9Ca656af840dff83E8264EcF986CA","symbol":"LINK"},"priceUsd":"14.20","volume":{"h24":9000},"priceChange":{"h24":2.0},"liquidity":{"usd":900000}},
 {"chainId":"bsc","dexId":"pancakeswap","pairAddress":"0xa3","baseToken":{"address":"0x514910771AF9Ca656af840dff83E8264EcF986CA","symbol":"LINK"},"priceUsd":"13.00","liquidity":{"usd":5000000}},
 {"chainId":"ethereum","dexId":"uniswap","pairAddress":"0xa4","baseToken":{"address":"0xdead","symbol":"X"},"quoteToken":{"address":"0x514910771AF9Ca656af840dff83E8264EcF986CA"},"priceUsd":"1","liquidity":{"usd":9000000}}
]}`

func TestGetBestPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest/dex/tokens/"+link {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(tokensBody))
	}))
	defer srv.Close()

	cfg := config.Default().DexScreener
	cfg.BaseURL = srv.URL
	c := NewDexScreenerClient(cfg, zap.NewNop())
	defer c.Close()

	pair, ok, err := c.GetBestPair(context.Background(), link)
	if err != nil || !ok {
		t.Fatalf("GetBestPair = %v, %v", ok, err)
	}
	if pair.PairAddress != "0xa2" {
		t.Errorf("best pair = %s, want the deepest ethereum pair 0xa2", pair.PairAddress)
	}
	if pair.Volume.H24 != 9000 || pair.PriceChange.H24 != 2.0 {
		t.Errorf("unexpected pair stats %+v", pair)
	}
}

func TestBestPairNone(t *testing.T) {
	if _, ok := BestPair(nil, "ethereum", link); ok {
		t.Errorf("expected no pair")
	}
}
