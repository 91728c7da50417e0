package order

import (
	"context"
	"time"

	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/writer"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type KafkaOrderEventWriter struct {
	mq *kafka.Writer
	tl *zap.Logger

	topic string
}

func NewKafkaOrderEventWriter(mq *kafka.Writer, tl *zap.Logger, topic string) writer.BatchWriter[model.OrderEvent] {
	return &KafkaOrderEventWriter{mq: mq, tl: tl, topic: topic}
}

func (w *KafkaOrderEventWriter) BWrite(ctx context.Context, events []model.OrderEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		msg, err := w.marshalToMsg(ev)
		if err != nil {
			w.tl.Warn("marshal order event failed", zap.String("order_id", ev.OrderID), zap.Error(err))
			continue
		}
		msgs = append(msgs, msg)
	}

	newCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// 重试机制
	var err error
	for attempt := 0; attempt < RETRY_COUNT; attempt++ {
		err = w.mq.WriteMessages(newCtx, msgs...)
		if err == nil {
			break
		}
	}
	if err != nil {
		w.tl.Warn("❌ MQ write failed, exceeded the maximum number of retries", zap.Error(err))
		return err
	}
	return nil
}

func (w *KafkaOrderEventWriter) Close() error {
	return nil
}

// marshalToMsg 以订单 ID 作为 key, 同一订单的事件落在同一分区保持顺序
func (w *KafkaOrderEventWriter) marshalToMsg(ev model.OrderEvent) (kafka.Message, error) {
	jsonData, err := sonic.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Topic: w.topic,
		Key:   []byte(ev.OrderID),
		Value: jsonData,
	}, nil
}
