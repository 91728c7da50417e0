package sink

import (
	"cryptojackal/internal/executor/model"
)

// Submitter 异步写入入口, *writer.AsyncBatchWriter 满足
type Submitter[T any] interface {
	Submit(item T)
}

// OrderEventSink 把订单事件分发到各个异步 writer, 终态事件额外写入归档表
type OrderEventSink struct {
	stream   []Submitter[model.OrderEvent]
	terminal []Submitter[model.OrderEvent]
}

func NewOrderEventSink() *OrderEventSink {
	return &OrderEventSink{}
}

// Stream 接收全部事件
func (s *OrderEventSink) Stream(w Submitter[model.OrderEvent]) *OrderEventSink {
	s.stream = append(s.stream, w)
	return s
}

// Terminal 只接收终态事件
func (s *OrderEventSink) Terminal(w Submitter[model.OrderEvent]) *OrderEventSink {
	s.terminal = append(s.terminal, w)
	return s
}

func (s *OrderEventSink) PublishOrderEvent(ev model.OrderEvent) {
	for _, w := range s.stream {
		w.Submit(ev)
	}
	if !ev.Terminal() {
		return
	}
	for _, w := range s.terminal {
		w.Submit(ev)
	}
}

// PriceSink 价格与告警的分发
type PriceSink struct {
	prices []Submitter[model.AggregatedPrice]
	alerts []Submitter[model.PriceAlert]
}

func NewPriceSink() *PriceSink {
	return &PriceSink{}
}

func (s *PriceSink) Prices(w Submitter[model.AggregatedPrice]) *PriceSink {
	s.prices = append(s.prices, w)
	return s
}

func (s *PriceSink) Alerts(w Submitter[model.PriceAlert]) *PriceSink {
	s.alerts = append(s.alerts, w)
	return s
}

func (s *PriceSink) PublishPrice(price model.AggregatedPrice) {
	for _, w := range s.prices {
		w.Submit(price)
	}
}

func (s *PriceSink) PublishAlerts(alerts []model.PriceAlert) {
	for _, a := range alerts {
		for _, w := range s.alerts {
			w.Submit(a)
		}
	}
}
