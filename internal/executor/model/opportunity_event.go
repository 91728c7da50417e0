package model

import "time"

const OPPORTUNITY_EVENT_TYPE = "cryptojackal.scanner.opportunity"

// OpportunityEvent 上游扫描服务写入 kafka 的机会消息
type OpportunityEvent struct {
	Type        string      `json:"type"`
	Opportunity Opportunity `json:"opportunity"`
	Strategy    string      `json:"strategy,omitempty"`   // immediate / delayed / scheduled
	DelayMs     int64       `json:"delay_ms,omitempty"`   // delayed
	ExecuteAt   int64       `json:"execute_at,omitempty"` // scheduled, 毫秒时间戳
	TimeoutMs   int64       `json:"timeout_ms,omitempty"` // 0 使用队列默认超时
}

// ExecutionStrategy 条件策略无法序列化, 消息里只支持前三种
func (e OpportunityEvent) ExecutionStrategy() (ExecutionStrategy, bool) {
	switch e.Strategy {
	case "", "immediate":
		return Immediate(), true
	case "delayed":
		if e.DelayMs < 0 {
			return ExecutionStrategy{}, false
		}
		return Delayed(time.Duration(e.DelayMs) * time.Millisecond), true
	case "scheduled":
		if e.ExecuteAt <= 0 {
			return ExecutionStrategy{}, false
		}
		return ScheduledAt(time.UnixMilli(e.ExecuteAt)), true
	default:
		return ExecutionStrategy{}, false
	}
}
