package alert

import (
	"testing"
	"time"

	"cryptojackal/internal/executor/model"

	"go.uber.org/zap"
)

func TestBulkOperations(t *testing.T) {
	w := &ESPriceAlertWriter{logger: zap.NewNop(), index: "alerts"}
	ts := time.UnixMilli(1_700_000_000_000)
	ops := w.bulkOperations([]model.PriceAlert{
		{ID: "a1", TokenAddress: "0xa", Type: model.ALERT_PRICE_SPIKE, ChangePercent: 7.5, Timestamp: ts},
		{ID: "a2", TokenAddress: "0xb", Type: model.ALERT_VOLATILITY, Timestamp: ts},
	})
	if len(ops) != 2 {
		t.Fatalf("ops = %d, want 2", len(ops))
	}
	if ops[0].ID != "a1" || ops[0].Index != "alerts" || ops[0].Action != "index" {
		t.Errorf("ops[0] = %+v", ops[0])
	}
	if ops[0].Document["type"] != "price_spike" || ops[0].Document["timestamp"] != int64(1_700_000_000_000) {
		t.Errorf("doc = %+v", ops[0].Document)
	}
}
