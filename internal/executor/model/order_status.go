package model

type OrderState uint8

const (
	OrderPending OrderState = iota
	OrderQueued
	OrderExecuting
	OrderCompleted
	OrderFailed
	OrderTimeout
	OrderCancelled
)

func (s OrderState) String() string {
	switch s {
	case OrderPending:
		return "pending"
	case OrderQueued:
		return "queued"
	case OrderExecuting:
		return "executing"
	case OrderCompleted:
		return "completed"
	case OrderFailed:
		return "failed"
	case OrderTimeout:
		return "timeout"
	case OrderCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s OrderState) Terminal() bool {
	return s >= OrderCompleted
}

// orderTransitions 合法的状态迁移, 终态不能再迁移
var orderTransitions = map[OrderState][]OrderState{
	OrderPending:   {OrderQueued, OrderCancelled, OrderTimeout},
	OrderQueued:    {OrderExecuting, OrderCancelled, OrderTimeout},
	OrderExecuting: {OrderCompleted, OrderFailed, OrderTimeout, OrderCancelled},
}

func (s OrderState) CanTransition(to OrderState) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderStatus 订单状态, Result 仅在 Completed 时有值, Reason 在 Failed/Cancelled/Timeout 时有值
type OrderStatus struct {
	State  OrderState   `json:"state"`
	Result *TradeResult `json:"result,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

func (s OrderStatus) String() string {
	if s.Reason != "" {
		return s.State.String() + ": " + s.Reason
	}
	return s.State.String()
}

// ParseOrderState String 的逆操作, 用于从持久化快照恢复状态
func ParseOrderState(s string) (OrderState, bool) {
	for st := OrderPending; st <= OrderCancelled; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}
