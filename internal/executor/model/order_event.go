package model

import (
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"
)

const ORDER_EVENT_TYPE = "cryptojackal.executor.order"

type OrderEventKind string

const (
	ORDER_EVENT_QUEUED    OrderEventKind = "queued"
	ORDER_EVENT_STARTED   OrderEventKind = "started"
	ORDER_EVENT_COMPLETED OrderEventKind = "completed"
	ORDER_EVENT_FAILED    OrderEventKind = "failed"
	ORDER_EVENT_CANCELLED OrderEventKind = "cancelled"
	ORDER_EVENT_TIMEOUT   OrderEventKind = "timeout"
)

// OrderEvent 订单状态变化事件, 写入 kafka/redis/pg
type OrderEvent struct {
	Type         string         `json:"type"`
	Kind         OrderEventKind `json:"kind"`
	OrderID      string         `json:"order_id"`
	TokenAddress string         `json:"token_address"`
	Symbol       string         `json:"symbol"`
	Priority     string         `json:"priority"`
	State        string         `json:"state"`
	Attempts     int            `json:"attempts"`
	Reason       string         `json:"reason,omitempty"`
	TxHash       string         `json:"tx_hash,omitempty"`
	GasUsed      uint64         `json:"gas_used,omitempty"`
	Opportunity  Opportunity    `json:"opportunity"`
	CreatedAt    time.Time      `json:"created_at"`
	Timestamp    time.Time      `json:"timestamp"`
}

func NewOrderEvent(kind OrderEventKind, o Order) OrderEvent {
	ev := OrderEvent{
		Type:         ORDER_EVENT_TYPE,
		Kind:         kind,
		OrderID:      o.ID,
		TokenAddress: o.Opportunity.TokenAddress,
		Symbol:       o.Opportunity.Symbol,
		Priority:     o.Priority.String(),
		State:        o.Status.State.String(),
		Attempts:     o.Attempts,
		Reason:       o.Status.Reason,
		Opportunity:  o.Opportunity,
		CreatedAt:    o.CreatedAt,
		Timestamp:    time.Now(),
	}
	if o.Status.Result != nil {
		ev.TxHash = o.Status.Result.TxHash
		ev.GasUsed = o.Status.Result.GasUsed
	}
	return ev
}

func (e OrderEvent) Terminal() bool {
	switch e.Kind {
	case ORDER_EVENT_COMPLETED, ORDER_EVENT_FAILED, ORDER_EVENT_CANCELLED, ORDER_EVENT_TIMEOUT:
		return true
	}
	return false
}

// ExecutedOrder 终态订单归档表
type ExecutedOrder struct {
	ID           int64          `gorm:"primaryKey" json:"id"`
	OrderID      string         `gorm:"column:order_id;type:varchar(64);not null;uniqueIndex" json:"order_id"`
	TokenAddress string         `gorm:"column:token_address;type:varchar(100);not null;index" json:"token_address"`
	Symbol       string         `gorm:"column:symbol;type:varchar(64)" json:"symbol"`
	Priority     string         `gorm:"column:priority;type:varchar(16);not null" json:"priority"`
	State        string         `gorm:"column:state;type:varchar(16);not null;index" json:"state"`
	Attempts     int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Reason       string         `gorm:"column:reason;type:text" json:"reason"`
	TxHash       string         `gorm:"column:tx_hash;type:varchar(80)" json:"tx_hash"`
	GasUsed      uint64         `gorm:"column:gas_used;not null;default:0" json:"gas_used"`
	Opportunity  datatypes.JSON `gorm:"column:opportunity;type:jsonb" json:"opportunity"`
	CreatedAt    int64          `gorm:"column:created_at;not null" json:"created_at"`   // 毫秒时间戳
	FinishedAt   int64          `gorm:"column:finished_at;not null" json:"finished_at"` // 毫秒时间戳
}

func (e *ExecutedOrder) TableName() string {
	return "executor.t_executed_order"
}

func NewExecutedOrder(ev OrderEvent) ExecutedOrder {
	opportunity, _ := sonic.Marshal(ev.Opportunity)
	return ExecutedOrder{
		OrderID:      ev.OrderID,
		TokenAddress: ev.TokenAddress,
		Symbol:       ev.Symbol,
		Priority:     ev.Priority,
		State:        ev.State,
		Attempts:     ev.Attempts,
		Reason:       ev.Reason,
		TxHash:       ev.TxHash,
		GasUsed:      ev.GasUsed,
		Opportunity:  datatypes.JSON(opportunity),
		CreatedAt:    ev.CreatedAt.UnixMilli(),
		FinishedAt:   ev.Timestamp.UnixMilli(),
	}
}

// Status 从事件快照还原订单状态, 只有成交哈希和 gas 用量能还原到 Result
func (e OrderEvent) Status() (OrderStatus, bool) {
	state, ok := ParseOrderState(e.State)
	if !ok {
		return OrderStatus{}, false
	}
	status := OrderStatus{State: state, Reason: e.Reason}
	if state == OrderCompleted {
		status.Result = &TradeResult{TxHash: e.TxHash, GasUsed: e.GasUsed}
	}
	return status, true
}

// Event 归档记录转回事件形式
func (e *ExecutedOrder) Event() OrderEvent {
	ev := OrderEvent{
		Type:         ORDER_EVENT_TYPE,
		Kind:         OrderEventKind(e.State),
		OrderID:      e.OrderID,
		TokenAddress: e.TokenAddress,
		Symbol:       e.Symbol,
		Priority:     e.Priority,
		State:        e.State,
		Attempts:     e.Attempts,
		Reason:       e.Reason,
		TxHash:       e.TxHash,
		GasUsed:      e.GasUsed,
		CreatedAt:    time.UnixMilli(e.CreatedAt),
		Timestamp:    time.UnixMilli(e.FinishedAt),
	}
	_ = sonic.Unmarshal(e.Opportunity, &ev.Opportunity)
	return ev
}
