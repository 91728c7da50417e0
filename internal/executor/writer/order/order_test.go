package order

import (
	"testing"
	"time"

	"cryptojackal/internal/executor/model"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

func event(id string, kind model.OrderEventKind, state string) model.OrderEvent {
	return model.OrderEvent{
		Type:      model.ORDER_EVENT_TYPE,
		Kind:      kind,
		OrderID:   id,
		State:     state,
		CreatedAt: time.UnixMilli(1_700_000_000_000),
		Timestamp: time.UnixMilli(1_700_000_005_000),
	}
}

func TestExecutedOrdersKeepsTerminalOnly(t *testing.T) {
	rows := executedOrders([]model.OrderEvent{
		event("a", model.ORDER_EVENT_QUEUED, "queued"),
		event("a", model.ORDER_EVENT_STARTED, "executing"),
		event("a", model.ORDER_EVENT_FAILED, "failed"),
		event("b", model.ORDER_EVENT_COMPLETED, "completed"),
		event("c", model.ORDER_EVENT_STARTED, "executing"),
	})
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].OrderID != "a" || rows[0].State != "failed" {
		t.Errorf("rows[0] = %+v", rows[0])
	}
	if rows[1].OrderID != "b" || rows[1].FinishedAt != 1_700_000_005_000 {
		t.Errorf("rows[1] = %+v", rows[1])
	}
}

func TestExecutedOrdersLastEventWins(t *testing.T) {
	rows := executedOrders([]model.OrderEvent{
		event("a", model.ORDER_EVENT_TIMEOUT, "timeout"),
		event("a", model.ORDER_EVENT_CANCELLED, "cancelled"),
	})
	if len(rows) != 1 || rows[0].State != "cancelled" {
		t.Errorf("rows = %+v, want single cancelled row", rows)
	}
}

func TestKafkaMessageKeyedByOrder(t *testing.T) {
	w := &KafkaOrderEventWriter{tl: zap.NewNop(), topic: "orders"}
	msg, err := w.marshalToMsg(event("order-1", model.ORDER_EVENT_QUEUED, "queued"))
	if err != nil {
		t.Fatalf("marshalToMsg: %v", err)
	}
	if string(msg.Key) != "order-1" || msg.Topic != "orders" {
		t.Errorf("msg key/topic = %s/%s", msg.Key, msg.Topic)
	}
	var decoded model.OrderEvent
	if err := sonic.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.OrderID != "order-1" || decoded.Kind != model.ORDER_EVENT_QUEUED {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestRecentMemberScore(t *testing.T) {
	z := recentMember(event("x", model.ORDER_EVENT_COMPLETED, "completed"))
	if z.Member != "x" || z.Score != 1_700_000_005_000 {
		t.Errorf("z = %+v", z)
	}
}
