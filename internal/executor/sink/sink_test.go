package sink

import (
	"testing"

	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/pricefeed"
	"cryptojackal/internal/executor/queue"
)

var (
	_ queue.EventSink     = (*OrderEventSink)(nil)
	_ pricefeed.Publisher = (*PriceSink)(nil)
)

type collector[T any] struct {
	items []T
}

func (c *collector[T]) Submit(item T) {
	c.items = append(c.items, item)
}

func TestOrderEventSinkRoutesTerminal(t *testing.T) {
	stream := &collector[model.OrderEvent]{}
	archive := &collector[model.OrderEvent]{}
	s := NewOrderEventSink().Stream(stream).Terminal(archive)

	for _, kind := range []model.OrderEventKind{
		model.ORDER_EVENT_QUEUED,
		model.ORDER_EVENT_STARTED,
		model.ORDER_EVENT_COMPLETED,
	} {
		s.PublishOrderEvent(model.OrderEvent{OrderID: "o1", Kind: kind})
	}

	if len(stream.items) != 3 {
		t.Errorf("stream got %d events, want 3", len(stream.items))
	}
	if len(archive.items) != 1 || archive.items[0].Kind != model.ORDER_EVENT_COMPLETED {
		t.Errorf("archive got %+v, want only completed", archive.items)
	}
}

func TestPriceSinkFansOut(t *testing.T) {
	prices := &collector[model.AggregatedPrice]{}
	alerts := &collector[model.PriceAlert]{}
	s := NewPriceSink().Prices(prices).Alerts(alerts)

	s.PublishPrice(model.AggregatedPrice{TokenAddress: "0xa"})
	s.PublishAlerts([]model.PriceAlert{{ID: "1"}, {ID: "2"}})

	if len(prices.items) != 1 || len(alerts.items) != 2 {
		t.Errorf("prices=%d alerts=%d, want 1 and 2", len(prices.items), len(alerts.items))
	}
}

func TestEmptySinksAreNoops(t *testing.T) {
	NewOrderEventSink().PublishOrderEvent(model.OrderEvent{Kind: model.ORDER_EVENT_FAILED})
	NewPriceSink().PublishAlerts([]model.PriceAlert{{ID: "1"}})
}
