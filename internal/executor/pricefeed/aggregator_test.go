package pricefeed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cryptojackal/internal/executor/config"
	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"

	"go.uber.org/zap"
)

type fakeSource struct {
	name  model.PriceSource
	calls atomic.Int32
	mu    sync.Mutex
	price float64
	err   error
}

func (f *fakeSource) Name() model.PriceSource { return f.name }

func (f *fakeSource) FetchPrice(_ context.Context, token string) (model.PriceData, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.PriceData{}, f.err
	}
	return model.PriceData{
		TokenAddress: token,
		Symbol:       "UNI",
		PriceUSD:     f.price,
		Volume24h:    1000,
		Source:       f.name,
		Timestamp:    time.Now(),
		Confidence:   0.8,
	}, nil
}

func (f *fakeSource) set(price float64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price, f.err = price, err
}

type recordingPublisher struct {
	mu     sync.Mutex
	prices int
	alerts []model.PriceAlert
}

func (p *recordingPublisher) PublishPrice(model.AggregatedPrice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices++
}

func (p *recordingPublisher) PublishAlerts(alerts []model.PriceAlert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, alerts...)
}

func testConfig() config.PriceFeedConfig {
	cfg := config.Default().PriceFeed
	cfg.RetryDelayMs = 1
	cfg.AggregationTimeoutMs = 500
	return cfg
}

const token = "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"

func TestUpdateTokenRetriesOnlyRetryableErrors(t *testing.T) {
	good := &fakeSource{name: model.SOURCE_COINGECKO, price: 7}
	flaky := &fakeSource{name: model.SOURCE_DEXSCREENER, err: errs.Network("test", errors.New("timeout"))}
	invalid := &fakeSource{name: model.SOURCE_UNISWAP_V2, err: errs.Validationf("test", "zero reserves")}

	a := NewAggregator(testConfig(), []Source{good, flaky, invalid}, zap.NewNop())
	agg, err := a.UpdateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("UpdateToken: %v", err)
	}
	if agg.SourceCount != 1 || agg.PriceUSD != 7 {
		t.Errorf("unexpected aggregate %+v", agg)
	}
	if n := flaky.calls.Load(); n != 3 {
		t.Errorf("network failures retried %d times, want 3 attempts", n)
	}
	if n := invalid.calls.Load(); n != 1 {
		t.Errorf("validation failure attempted %d times, want 1", n)
	}
}

func TestUpdateTokenAllSourcesFail(t *testing.T) {
	src := &fakeSource{name: model.SOURCE_COINGECKO, err: errs.Validationf("test", "not listed")}
	a := NewAggregator(testConfig(), []Source{src}, zap.NewNop())

	_, err := a.UpdateToken(context.Background(), token)
	if !errs.Is(err, errs.KindNetwork) {
		t.Fatalf("err = %v, want network error", err)
	}
	m := a.Metrics()
	if m.TotalUpdates != 1 || m.FailedUpdates != 1 || m.SuccessfulUpdates != 0 {
		t.Errorf("metrics = %+v", m)
	}
	if _, ok := a.CurrentPrice(token); ok {
		t.Errorf("no price should be cached after a failed update")
	}
}

func TestUpdateTokenAlertsOnPriceSwing(t *testing.T) {
	src := &fakeSource{name: model.SOURCE_COINGECKO, price: 100}
	pub := &recordingPublisher{}
	a := NewAggregator(testConfig(), []Source{src}, zap.NewNop())
	a.SetPublisher(pub)

	ctx := context.Background()
	if _, err := a.UpdateToken(ctx, token); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if len(a.RecentAlerts(10)) != 0 {
		t.Fatalf("first observation must not alert")
	}

	src.set(110, nil)
	if _, err := a.UpdateToken(ctx, token); err != nil {
		t.Fatalf("second update: %v", err)
	}
	src.set(90, nil)
	if _, err := a.UpdateToken(ctx, token); err != nil {
		t.Fatalf("third update: %v", err)
	}

	alerts := a.RecentAlerts(10)
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(alerts))
	}
	if alerts[0].Type != model.ALERT_PRICE_DROP || alerts[1].Type != model.ALERT_PRICE_SPIKE {
		t.Errorf("alerts not newest first: %v, %v", alerts[0].Type, alerts[1].Type)
	}
	if got := a.RecentAlerts(1); len(got) != 1 || got[0].ID != alerts[0].ID {
		t.Errorf("RecentAlerts(1) should return the newest alert")
	}
	if m := a.Metrics(); m.AlertsGenerated != 2 || m.SuccessfulUpdates != 3 {
		t.Errorf("metrics = %+v", m)
	}
	if pub.prices != 3 || len(pub.alerts) != 2 {
		t.Errorf("publisher saw %d prices and %d alerts", pub.prices, len(pub.alerts))
	}
	if p, ok := a.CurrentPrice(token); !ok || p.PriceUSD != 90 {
		t.Errorf("CurrentPrice = %v, %v", p.PriceUSD, ok)
	}
}

func TestHistoryAndAlertLogBounded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHistory = 3
	cfg.MaxAlerts = 2
	cfg.Alerts.PriceChangePercent = 1
	src := &fakeSource{name: model.SOURCE_COINGECKO, price: 1}
	a := NewAggregator(cfg, []Source{src}, zap.NewNop())

	for i := 1; i <= 5; i++ {
		src.set(float64(i*10), nil)
		if _, err := a.UpdateToken(context.Background(), token); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	h := a.History(token)
	if len(h) != 3 {
		t.Fatalf("history length = %d, want 3", len(h))
	}
	if h[0].PriceUSD != 30 || h[2].PriceUSD != 50 {
		t.Errorf("history should keep the newest quotes, got %v..%v", h[0].PriceUSD, h[2].PriceUSD)
	}
	if n := len(a.RecentAlerts(0)); n != 2 {
		t.Errorf("alert log length = %d, want 2", n)
	}
}

func TestDisabledSourcesIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.EnabledSources = []string{"coingecko"}
	on := &fakeSource{name: model.SOURCE_COINGECKO, price: 1}
	off := &fakeSource{name: model.SOURCE_DEXSCREENER, price: 2}
	a := NewAggregator(cfg, []Source{on, off}, zap.NewNop())

	if _, err := a.UpdateToken(context.Background(), token); err != nil {
		t.Fatalf("UpdateToken: %v", err)
	}
	if off.calls.Load() != 0 {
		t.Errorf("disabled source was queried")
	}
}

func TestStartStop(t *testing.T) {
	cfg := testConfig()
	cfg.UpdateIntervalSeconds = 1
	src := &fakeSource{name: model.SOURCE_COINGECKO, price: 3}
	a := NewAggregator(cfg, []Source{src}, zap.NewNop())

	a.Start(context.Background(), []string{token})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := a.CurrentPrice(token); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	a.Stop()

	if _, ok := a.CurrentPrice(token); !ok {
		t.Errorf("price loop never produced a price")
	}
}
