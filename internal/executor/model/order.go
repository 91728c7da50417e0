package model

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// OrderPriority 执行优先级, 数值越大越优先
type OrderPriority uint8

const (
	PriorityLow       OrderPriority = 1
	PriorityNormal    OrderPriority = 2
	PriorityHigh      OrderPriority = 3
	PriorityCritical  OrderPriority = 4
	PriorityEmergency OrderPriority = 5
)

func (p OrderPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	case PriorityEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}

func (p OrderPriority) Valid() bool {
	return p >= PriorityLow && p <= PriorityEmergency
}

// Urgency 映射到 0-10 的 gas 紧急度
func (p OrderPriority) Urgency() uint8 {
	return uint8(p) * 2
}

type StrategyKind uint8

const (
	StrategyImmediate StrategyKind = iota
	StrategyDelayed
	StrategyScheduled
	StrategyConditional
)

func (k StrategyKind) String() string {
	switch k {
	case StrategyImmediate:
		return "immediate"
	case StrategyDelayed:
		return "delayed"
	case StrategyScheduled:
		return "scheduled"
	case StrategyConditional:
		return "conditional"
	default:
		return "unknown"
	}
}

// ExecutionStrategy 决定订单何时可以被调度
type ExecutionStrategy struct {
	Kind      StrategyKind
	Delay     time.Duration
	At        time.Time
	Condition func(now time.Time) bool
}

func Immediate() ExecutionStrategy { return ExecutionStrategy{Kind: StrategyImmediate} }

func Delayed(d time.Duration) ExecutionStrategy {
	return ExecutionStrategy{Kind: StrategyDelayed, Delay: d}
}

func ScheduledAt(at time.Time) ExecutionStrategy {
	return ExecutionStrategy{Kind: StrategyScheduled, At: at}
}

func Conditional(pred func(now time.Time) bool) ExecutionStrategy {
	return ExecutionStrategy{Kind: StrategyConditional, Condition: pred}
}

// Ready 判断订单在 now 时刻是否满足调度条件
func (s ExecutionStrategy) Ready(createdAt, now time.Time) bool {
	switch s.Kind {
	case StrategyDelayed:
		return !now.Before(createdAt.Add(s.Delay))
	case StrategyScheduled:
		return !now.Before(s.At)
	case StrategyConditional:
		if s.Condition == nil {
			return true
		}
		return s.Condition(now)
	default:
		return true
	}
}

// TradeResult 成交结果
type TradeResult struct {
	TxHash       string        `json:"tx_hash"`
	TxID         string        `json:"tx_id"`
	BlockNumber  uint64        `json:"block_number"`
	GasUsed      uint64        `json:"gas_used"`
	AmountIn     *big.Int      `json:"amount_in"`
	MinAmountOut *big.Int      `json:"min_amount_out"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Order 订单, 由队列持有直到进入终态
type Order struct {
	ID          string
	Priority    OrderPriority
	Strategy    ExecutionStrategy
	Opportunity Opportunity
	CreatedAt   time.Time
	Timeout     time.Duration // 0 表示使用队列默认值
	Status      OrderStatus
	Attempts    int
	LastError   string
	TxID        string
	StartedAt   time.Time
	CompletedAt time.Time
}

// NewOrder 根据机会快照创建订单, 优先级由阈值推导
func NewOrder(op Opportunity, strategy ExecutionStrategy) *Order {
	return &Order{
		ID:          uuid.NewString(),
		Priority:    PriorityFromOpportunity(op),
		Strategy:    strategy,
		Opportunity: op,
		CreatedAt:   time.Now(),
		Status:      OrderStatus{State: OrderPending},
	}
}

func (o *Order) Deadline(defaultTimeout time.Duration) time.Time {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return o.CreatedAt.Add(timeout)
}
