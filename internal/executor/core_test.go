package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"cryptojackal/internal/executor/config"
	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/queue"
	"cryptojackal/internal/executor/txlife"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const testToken = "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"

type stubGas struct{}

func (stubGas) SuggestStrategy(priority uint8, maxCost decimal.Decimal) (model.GasStrategy, error) {
	return model.StandardGas(), nil
}

type stubLifecycle struct{}

func (stubLifecycle) Prepare(ctx context.Context, params model.TradeParams, strategy model.GasStrategy) (model.TransactionRequest, error) {
	return model.TransactionRequest{}, errs.Network("stub.prepare", errors.New("offline"))
}

func (stubLifecycle) Sign(ctx context.Context, id string, wallet txlife.Wallet) ([]byte, error) {
	return nil, nil
}

func (stubLifecycle) Submit(ctx context.Context, id string, signed []byte) (common.Hash, error) {
	return common.Hash{}, nil
}

func (stubLifecycle) AwaitConfirmation(ctx context.Context, id string, hash common.Hash) (model.TransactionRequest, error) {
	return model.TransactionRequest{}, nil
}

func (stubLifecycle) Cancel(id string) error { return nil }

type stubWallet struct{}

func (stubWallet) Address() common.Address { return common.HexToAddress("0xaa") }

func (stubWallet) SignTransaction(ctx context.Context, tx *types.Transaction, chainID *big.Int) ([]byte, error) {
	return nil, fmt.Errorf("not used")
}

type mapPrices map[string]model.AggregatedPrice

func (m mapPrices) CurrentPrice(token string) (model.AggregatedPrice, bool) {
	p, ok := m[strings.ToLower(token)]
	return p, ok
}

func (m mapPrices) Get(ctx context.Context, token string) (model.AggregatedPrice, bool) {
	return m.CurrentPrice(token)
}

type fakeOrderDAO struct {
	events map[string]*model.OrderEvent
	err    error
	calls  int
}

func (f *fakeOrderDAO) GetOrderEvent(ctx context.Context, orderID string) (*model.OrderEvent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.events[orderID], nil
}

func (f *fakeOrderDAO) RecentOrderIDs(ctx context.Context, limit int64) ([]string, error) {
	return nil, nil
}

func (f *fakeOrderDAO) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func newTestCore(t *testing.T, orders *fakeOrderDAO) *Core {
	t.Helper()
	cfg := config.Default()
	q, err := queue.NewQueue(cfg.Queue, cfg.Chain, queue.Deps{
		Gas:       stubGas{},
		Prices:    mapPrices{},
		Lifecycle: stubLifecycle{},
		Wallet:    stubWallet{},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})
	return &Core{cfg: cfg, tl: zap.NewNop(), queue: q, orders: orders}
}

func TestOrderStatusFromQueue(t *testing.T) {
	orders := &fakeOrderDAO{}
	c := newTestCore(t, orders)

	id, err := c.SubmitOrder(model.NewOrder(model.Opportunity{
		TokenAddress:   testToken,
		Symbol:         "UNI",
		ExpectedProfit: 10,
		Confidence:     0.9,
	}, model.Immediate()))
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}

	status, err := c.OrderStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("OrderStatus: %v", err)
	}
	if status.State.Terminal() {
		t.Errorf("state = %s, want non-terminal", status.State)
	}
	if orders.calls != 0 {
		t.Errorf("dao called %d times for an in-memory order", orders.calls)
	}
}

func TestOrderStatusFallback(t *testing.T) {
	completed := &model.OrderEvent{
		Kind:    model.ORDER_EVENT_COMPLETED,
		OrderID: "done-1",
		State:   model.OrderCompleted.String(),
		TxHash:  "0xabc",
		GasUsed: 120000,
	}
	broken := &model.OrderEvent{OrderID: "broken", State: "exploded"}

	tests := []struct {
		name      string
		dao       *fakeOrderDAO
		id        string
		wantState model.OrderState
		wantErr   func(error) bool
	}{
		{
			name:      "archived completed order",
			dao:       &fakeOrderDAO{events: map[string]*model.OrderEvent{"done-1": completed}},
			id:        "done-1",
			wantState: model.OrderCompleted,
		},
		{
			name:    "unknown order",
			dao:     &fakeOrderDAO{},
			id:      "missing",
			wantErr: func(err error) bool { return errors.Is(err, errs.ErrNotFound) },
		},
		{
			name:    "storage failure",
			dao:     &fakeOrderDAO{err: errors.New("redis down")},
			id:      "any",
			wantErr: func(err error) bool { return errs.Is(err, errs.KindNetwork) },
		},
		{
			name:    "unparseable state",
			dao:     &fakeOrderDAO{events: map[string]*model.OrderEvent{"broken": broken}},
			id:      "broken",
			wantErr: func(err error) bool { return errs.Is(err, errs.KindInternal) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCore(t, tt.dao)
			status, err := c.OrderStatus(context.Background(), tt.id)
			if tt.wantErr != nil {
				if err == nil || !tt.wantErr(err) {
					t.Fatalf("OrderStatus error = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("OrderStatus: %v", err)
			}
			if status.State != tt.wantState {
				t.Errorf("state = %s, want %s", status.State, tt.wantState)
			}
			if status.Result == nil || status.Result.TxHash != "0xabc" || status.Result.GasUsed != 120000 {
				t.Errorf("result = %+v", status.Result)
			}
		})
	}
}

func TestFallbackOracle(t *testing.T) {
	local := mapPrices{"0xa": {TokenAddress: "0xa", PriceUSD: 1}}
	remote := mapPrices{
		"0xa": {TokenAddress: "0xa", PriceUSD: 99},
		"0xb": {TokenAddress: "0xb", PriceUSD: 2},
	}

	o := fallbackOracle{local: local, remote: remote}
	if p, ok := o.CurrentPrice("0xA"); !ok || p.PriceUSD != 1 {
		t.Errorf("local price = %v, %v; want 1", p.PriceUSD, ok)
	}
	if p, ok := o.CurrentPrice("0xb"); !ok || p.PriceUSD != 2 {
		t.Errorf("remote price = %v, %v; want 2", p.PriceUSD, ok)
	}
	if _, ok := o.CurrentPrice("0xc"); ok {
		t.Error("missing token should not resolve")
	}

	noRemote := fallbackOracle{local: local}
	if _, ok := noRemote.CurrentPrice("0xb"); ok {
		t.Error("nil remote should not resolve")
	}
}

func TestPriceTokens(t *testing.T) {
	cfg := config.Default()
	cfg.PriceFeed.Tokens = []string{
		strings.ToLower(config.WETH_ADDRESS),
		testToken,
		"not-an-address",
		strings.ToUpper(testToken[:2]) + strings.ToLower(testToken[2:]),
	}

	got := priceTokens(cfg)
	want := []string{
		common.HexToAddress(config.WETH_ADDRESS).Hex(),
		common.HexToAddress(testToken).Hex(),
	}
	if len(got) != len(want) {
		t.Fatalf("tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tokens[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
