package consumer

import (
	"context"
	"errors"
	"strings"
	"time"

	"cryptojackal/internal/executor/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MessageHandler 解耦消息处理逻辑
type MessageHandler interface {
	HandleMessage(msg kafka.Message)
}

// messageReader *kafka.Reader 满足, 测试里替换
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer 通用 kafka 消费循环
type Consumer struct {
	logger      *zap.Logger
	kafkaReader messageReader
	limiter     *rate.Limiter
	done        chan struct{}
}

// NewConsumer 创建一个新的通用 Consumer 实例
func NewConsumer(conf config.KafkaConfig, logger *zap.Logger, topic string) *Consumer {
	return newConsumer(newKafkaReader(conf, topic), logger)
}

func newConsumer(reader messageReader, logger *zap.Logger) *Consumer {
	// 机会消息量不大, 限流主要防止上游突发把队列灌满
	limiter := rate.NewLimiter(rate.Limit(500), 500)
	return &Consumer{
		logger:      logger,
		kafkaReader: reader,
		limiter:     limiter,
		done:        make(chan struct{}),
	}
}

// Start 启动消费者主循环
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) {
	go c.run(ctx, handler)
}

// 主消费逻辑
func (c *Consumer) run(ctx context.Context, handler MessageHandler) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			c.logger.Warn("closing Kafka consumer...")
			return
		default:
		}

		// 等待令牌可用，实现速率限制
		if err := c.limiter.Wait(ctx); err != nil {
			continue
		}

		ctxWithTimeout, cancel := context.WithTimeout(ctx, 2*time.Second)
		msg, err := c.kafkaReader.ReadMessage(ctxWithTimeout)
		cancel()

		if err != nil {
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, context.DeadlineExceeded):
				c.logger.Debug("⌛ Kafka running...")
			default:
				c.logger.Warn("❌ Kafka Read Error", zap.Error(err))
			}
			continue
		}

		handler.HandleMessage(msg)
	}
}

// Stop 等待主循环退出后关闭 reader, 需先取消 Start 传入的 ctx
func (c *Consumer) Stop() error {
	<-c.done
	return c.kafkaReader.Close()
}

// 创建 Kafka Reader
func newKafkaReader(conf config.KafkaConfig, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:                strings.Split(conf.Brokers, ","),
		Topic:                  topic,
		GroupID:                conf.GroupID,
		StartOffset:            kafka.LastOffset,
		CommitInterval:         time.Second,
		QueueCapacity:          500,
		MinBytes:               1,
		MaxBytes:               10e6,
		ReadBatchTimeout:       200 * time.Millisecond, // 机会有时效性, 不攒批
		PartitionWatchInterval: 5 * time.Second,
	})
}
