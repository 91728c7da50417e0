package consumer

import (
	"context"
	"strconv"
	"sync"
	"time"

	"cryptojackal/internal/executor/config"
	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/monitor"
	"cryptojackal/pkg/utils"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const BUFFER_SIZE = 500

// OpportunityHandler *handler.OpportunityHandler 满足
type OpportunityHandler interface {
	HandleOpportunity(ev model.OpportunityEvent) (string, error)
}

type OpportunityConsumer struct {
	*Consumer                                // 组合通用 Consumer
	id         string                        // 消费者ID
	workerSize int                           // worker 数
	buffers    []chan model.OpportunityEvent // 按 token 分片的消息队列
	handler    OpportunityHandler
	wg         sync.WaitGroup
}

// NewOpportunityConsumer 创建 OpportunityConsumer 实例
func NewOpportunityConsumer(conf config.KafkaConfig, logger *zap.Logger, handler OpportunityHandler) *OpportunityConsumer {
	return newOpportunityConsumer(NewConsumer(conf, logger, conf.TopicOpportunity), conf.WorkerNum, handler)
}

func newOpportunityConsumer(c *Consumer, workerSize int, handler OpportunityHandler) *OpportunityConsumer {
	if workerSize <= 0 {
		workerSize = 1
	}
	buffers := make([]chan model.OpportunityEvent, workerSize)
	for i := range buffers {
		buffers[i] = make(chan model.OpportunityEvent, BUFFER_SIZE)
	}
	return &OpportunityConsumer{
		Consumer:   c,
		id:         "opportunity_consumer",
		workerSize: workerSize,
		buffers:    buffers,
		handler:    handler,
	}
}

// Run 启动 worker 和 kafka 消费
func (oc *OpportunityConsumer) Run(ctx context.Context) {
	for i := 0; i < oc.workerSize; i++ {
		oc.wg.Add(1)
		go oc.work(ctx, i)
	}
	oc.Consumer.Start(ctx, oc)
}

func (oc *OpportunityConsumer) work(ctx context.Context, idx int) {
	defer oc.wg.Done()
	workerID := strconv.Itoa(idx)
	for {
		select {
		case ev, ok := <-oc.buffers[idx]:
			if !ok {
				return
			}
			_, _ = oc.handler.HandleOpportunity(ev)
			monitor.KafkaWorkerMessagesProcessed.WithLabelValues(workerID).Inc()
		case <-ctx.Done():
			return
		}
	}
}

// HandleMessage 实现 MessageHandler 接口
func (oc *OpportunityConsumer) HandleMessage(msg kafka.Message) {
	monitor.KafkaMessagesReceived.WithLabelValues("opportunity").Inc()

	var ev model.OpportunityEvent
	if err := sonic.Unmarshal(msg.Value, &ev); err != nil {
		oc.logger.Warn("❌ JSON Parse Error", zap.String("consumerID", oc.id), zap.Error(err), zap.String("raw", string(msg.Value)))
		return
	}

	// 过滤掉非机会消息
	if ev.Type != model.OPPORTUNITY_EVENT_TYPE {
		return
	}

	oc.dispatch(ev)
}

func (oc *OpportunityConsumer) ID() string {
	return oc.id
}

// Stop 停止消费后关闭 buffer, 等待 worker 处理完
func (oc *OpportunityConsumer) Stop() error {
	err := oc.Consumer.Stop()
	for i := range oc.buffers {
		close(oc.buffers[i])
	}
	oc.wg.Wait()
	return err
}

// dispatch 同一 token 的机会落在同一 worker, 保证入队顺序
func (oc *OpportunityConsumer) dispatch(ev model.OpportunityEvent) {
	idx := utils.GetHashBucket(ev.Opportunity.TokenAddress, uint32(oc.workerSize))

	// 检测 buffer 是否接近满载，触发短暂休眠
	if len(oc.buffers[idx]) > cap(oc.buffers[idx])*8/10 {
		time.Sleep(100 * time.Millisecond)
	}

	select {
	case oc.buffers[idx] <- ev:
	default:
		oc.logger.Warn("❌ buffers is full", zap.String("consumerID", oc.id), zap.Uint32("idx", idx))
	}
}
