package model

import (
	"math/big"
	"testing"
	"time"
)

func TestPriorityFromOpportunity(t *testing.T) {
	tests := []struct {
		name   string
		profit float64
		impact float64
		want   OrderPriority
	}{
		{"emergency profit", 0.20, 0.01, PriorityEmergency},
		{"critical by profit", 0.16, 0.05, PriorityCritical},
		{"critical by impact", 0.02, 0.005, PriorityCritical},
		{"high by profit", 0.10, 0.05, PriorityHigh},
		{"high by impact", 0.01, 0.015, PriorityHigh},
		{"normal", 0.05, 0.05, PriorityNormal},
		{"low", 0.01, 0.05, PriorityLow},
		{"zero impact is critical", 0.01, 0, PriorityCritical},
		{"impact at high bound", 0.01, 0.02, PriorityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PriorityFromOpportunity(Opportunity{ExpectedProfit: tt.profit, PriceImpact: tt.impact})
			if got != tt.want {
				t.Errorf("PriorityFromOpportunity(%v, %v) = %v, want %v", tt.profit, tt.impact, got, tt.want)
			}
		})
	}
}

func TestOrderStateTransitions(t *testing.T) {
	allowed := [][2]OrderState{
		{OrderPending, OrderQueued},
		{OrderQueued, OrderExecuting},
		{OrderQueued, OrderTimeout},
		{OrderExecuting, OrderCompleted},
		{OrderExecuting, OrderCancelled},
	}
	for _, tr := range allowed {
		if !tr[0].CanTransition(tr[1]) {
			t.Errorf("%v -> %v should be allowed", tr[0], tr[1])
		}
	}

	rejected := [][2]OrderState{
		{OrderCompleted, OrderExecuting},
		{OrderCancelled, OrderQueued},
		{OrderTimeout, OrderCompleted},
		{OrderPending, OrderExecuting},
		{OrderQueued, OrderCompleted},
	}
	for _, tr := range rejected {
		if tr[0].CanTransition(tr[1]) {
			t.Errorf("%v -> %v should be rejected", tr[0], tr[1])
		}
	}
}

func TestTxStateTransitions(t *testing.T) {
	if TxConfirmed.CanTransition(TxSigning) {
		t.Errorf("confirmed -> signing must be rejected")
	}
	if TxPreparing.CanTransition(TxTimeout) {
		t.Errorf("timeout is only reachable from submitted")
	}
	if !TxSubmitted.CanTransition(TxTimeout) {
		t.Errorf("submitted -> timeout should be allowed")
	}
	for _, s := range []TxState{TxPending, TxPreparing, TxSigning, TxSubmitted} {
		if !s.CanTransition(TxCancelled) {
			t.Errorf("%v -> cancelled should be allowed", s)
		}
	}
}

func TestStrategyReady(t *testing.T) {
	created := time.Now()
	now := created.Add(5 * time.Second)

	if !Immediate().Ready(created, now) {
		t.Errorf("immediate must always be ready")
	}
	if Delayed(10*time.Second).Ready(created, now) {
		t.Errorf("delayed order ready before its delay elapsed")
	}
	if !Delayed(5*time.Second).Ready(created, now) {
		t.Errorf("delayed order not ready once delay elapsed")
	}
	if ScheduledAt(now.Add(time.Second)).Ready(created, now) {
		t.Errorf("scheduled order ready before target time")
	}
	if Conditional(func(time.Time) bool { return false }).Ready(created, now) {
		t.Errorf("conditional order ready although predicate is false")
	}
	if !Conditional(nil).Ready(created, now) {
		t.Errorf("conditional order without predicate should be ready")
	}
}

func TestGasStrategyCacheKey(t *testing.T) {
	if StandardGas().CacheKey() != "standard" {
		t.Errorf("unexpected key %q", StandardGas().CacheKey())
	}
	k := CustomGas(big.NewInt(30), big.NewInt(2)).CacheKey()
	if k != "custom:30:2" {
		t.Errorf("unexpected custom key %q", k)
	}
}

func TestParseOrderState(t *testing.T) {
	for st := OrderPending; st <= OrderCancelled; st++ {
		got, ok := ParseOrderState(st.String())
		if !ok || got != st {
			t.Errorf("ParseOrderState(%q) = %v, %v", st.String(), got, ok)
		}
	}
	if _, ok := ParseOrderState("unknown"); ok {
		t.Error("unknown state should not parse")
	}
}

func TestExecutedOrderRoundTrip(t *testing.T) {
	o := NewOrder(Opportunity{TokenAddress: "0xabc", Symbol: "ABC", ExpectedProfit: 0.1}, Immediate())
	o.Status = OrderStatus{State: OrderCompleted, Result: &TradeResult{TxHash: "0xdead", GasUsed: 90000}}
	o.Attempts = 2

	row := NewExecutedOrder(NewOrderEvent(ORDER_EVENT_COMPLETED, *o))
	ev := row.Event()
	if ev.OrderID != o.ID || ev.Kind != ORDER_EVENT_COMPLETED || ev.Attempts != 2 {
		t.Errorf("event = %+v", ev)
	}
	if ev.Opportunity.Symbol != "ABC" {
		t.Errorf("opportunity not restored: %+v", ev.Opportunity)
	}
	status, ok := ev.Status()
	if !ok || status.State != OrderCompleted || status.Result == nil || status.Result.TxHash != "0xdead" {
		t.Errorf("status = %+v, %v", status, ok)
	}
}
