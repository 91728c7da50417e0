package queue

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"cryptojackal/internal/executor/config"
	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/txlife"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	testWeth   = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	tokenUNI   = "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"
	tokenLINK  = "0x514910771AF9Ca656af840dff83E8264EcF986CA"
	tokenPEPE  = "0x6982508145454Ce325dDbE47a25d4ec3d2311933"
	testWallet = "0x00000000000000000000000000000000000000aa"
)

type fakeGas struct {
	mu        sync.Mutex
	strategy  model.GasStrategy
	err       error
	urgencies []uint8
}

func (f *fakeGas) SuggestStrategy(priority uint8, maxCost decimal.Decimal) (model.GasStrategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urgencies = append(f.urgencies, priority)
	return f.strategy, f.err
}

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]model.AggregatedPrice
}

func newFakePrices() *fakePrices {
	p := &fakePrices{prices: make(map[string]model.AggregatedPrice)}
	p.set(testWeth, 2000, 0.9)
	for _, token := range []string{tokenUNI, tokenLINK, tokenPEPE} {
		p.set(token, 4, 0.9)
	}
	return p
}

func (p *fakePrices) set(token string, price, confidence float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[strings.ToLower(token)] = model.AggregatedPrice{
		TokenAddress: strings.ToLower(token),
		PriceUSD:     price,
		Confidence:   confidence,
		SourceCount:  3,
		Timestamp:    time.Now(),
	}
}

func (p *fakePrices) remove(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.prices, strings.ToLower(token))
}

func (p *fakePrices) CurrentPrice(token string) (model.AggregatedPrice, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[strings.ToLower(token)]
	return price, ok
}

// fakeLifecycle prepareErrs 按调用顺序消费, gate 非空时确认阶段阻塞
type fakeLifecycle struct {
	mu          sync.Mutex
	seq         int
	prepared    []model.TradeParams
	strategies  []model.GasStrategy
	prepareErrs []error
	cancelled   []string
	gate        chan struct{}
	ignoreCtx   bool
	delay       time.Duration
	inflight    chan string
	awaitErr    error
}

func (f *fakeLifecycle) Prepare(ctx context.Context, params model.TradeParams, strategy model.GasStrategy) (model.TransactionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.prepared = append(f.prepared, params)
	f.strategies = append(f.strategies, strategy)
	if len(f.prepareErrs) > 0 {
		err := f.prepareErrs[0]
		f.prepareErrs = f.prepareErrs[1:]
		if err != nil {
			return model.TransactionRequest{}, err
		}
	}
	return model.TransactionRequest{ID: fmt.Sprintf("tx-%d", f.seq), State: model.TxPreparing}, nil
}

func (f *fakeLifecycle) Sign(ctx context.Context, id string, wallet txlife.Wallet) ([]byte, error) {
	return []byte{0x01}, nil
}

func (f *fakeLifecycle) Submit(ctx context.Context, id string, signed []byte) (common.Hash, error) {
	return common.HexToHash("0xabc1"), nil
}

func (f *fakeLifecycle) AwaitConfirmation(ctx context.Context, id string, hash common.Hash) (model.TransactionRequest, error) {
	if f.inflight != nil {
		f.inflight <- id
	}
	if f.gate != nil {
		if f.ignoreCtx {
			<-f.gate
		} else {
			select {
			case <-f.gate:
			case <-ctx.Done():
				return model.TransactionRequest{}, errs.Network("fake.await", ctx.Err())
			}
		}
	}
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return model.TransactionRequest{}, errs.Network("fake.await", ctx.Err())
			}
		}
	}
	if f.awaitErr != nil {
		return model.TransactionRequest{ID: id, State: model.TxFailed}, f.awaitErr
	}
	return model.TransactionRequest{ID: id, State: model.TxConfirmed, BlockNumber: 100, GasUsed: 120000}, nil
}

func (f *fakeLifecycle) Cancel(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeLifecycle) preparedTokens() []common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]common.Address, len(f.prepared))
	for i, p := range f.prepared {
		out[i] = p.TokenOut
	}
	return out
}

func (f *fakeLifecycle) prepareCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prepared)
}

func (f *fakeLifecycle) cancelledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

type fakeWallet struct{}

func (fakeWallet) Address() common.Address { return common.HexToAddress(testWallet) }

func (fakeWallet) SignTransaction(ctx context.Context, tx *types.Transaction, chainID *big.Int) ([]byte, error) {
	return nil, fmt.Errorf("not used")
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.OrderEvent
}

func (r *recordingSink) PublishOrderEvent(ev model.OrderEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) kinds(orderID string) []model.OrderEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.OrderEventKind
	for _, ev := range r.events {
		if ev.OrderID == orderID {
			out = append(out, ev.Kind)
		}
	}
	return out
}

func testConfig() config.QueueConfig {
	return config.QueueConfig{
		MaxConcurrentExecutions: 2,
		ExecutionTimeoutSeconds: 5,
		MaxRetryAttempts:        3,
		RetryBaseDelayMs:        1,
		RetryMaxDelayMs:         5,
		AdmissionIntervalMs:     5,
		ArchiveSize:             100,
		TradeAmountWei:          "100000000000000000",
		MaxSlippage:             0.02,
		MinPriceConfidence:      0.5,
		MaxPriceAgeSeconds:      60,
		MaxGasCostEth:           "0.05",
	}
}

type harness struct {
	q         *Queue
	gas       *fakeGas
	prices    *fakePrices
	lifecycle *fakeLifecycle
	sink      *recordingSink
}

func newHarness(t *testing.T, cfg config.QueueConfig) *harness {
	t.Helper()
	h := &harness{
		gas:       &fakeGas{strategy: model.StandardGas()},
		prices:    newFakePrices(),
		lifecycle: &fakeLifecycle{},
		sink:      &recordingSink{},
	}
	q, err := NewQueue(cfg, config.ChainConfig{WethAddress: testWeth}, Deps{
		Gas:       h.gas,
		Prices:    h.prices,
		Lifecycle: h.lifecycle,
		Wallet:    fakeWallet{},
		Events:    h.sink,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	h.q = q
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.q.Run(ctx)
}

func newTestOrder(token string, priority model.OrderPriority, profit float64) *model.Order {
	o := model.NewOrder(model.Opportunity{
		TokenAddress:   token,
		Symbol:         "TKN",
		ExpectedProfit: profit,
		Confidence:     0.9,
	}, model.Immediate())
	o.Priority = priority
	return o
}

func waitForState(t *testing.T, q *Queue, id string, want model.OrderState) model.Order {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if o, ok := q.Order(id); ok && o.Status.State == want {
			return o
		}
		time.Sleep(2 * time.Millisecond)
	}
	o, _ := q.Order(id)
	t.Fatalf("order %s: state = %s, want %s", id, o.Status, want)
	return o
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
