package handler

import (
	"errors"
	"time"

	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	MAX_OPPORTUNITY_AGE = 30 * time.Second // 超过该时间的机会直接丢弃
	MIN_CONFIDENCE      = 0.1
)

// OrderSubmitter *queue.Queue 满足
type OrderSubmitter interface {
	Submit(order *model.Order) (string, error)
}

type OpportunityHandler struct {
	tl    *zap.Logger
	queue OrderSubmitter
	now   func() time.Time
}

func NewOpportunityHandler(logger *zap.Logger, queue OrderSubmitter) *OpportunityHandler {
	return &OpportunityHandler{
		tl:    logger.Named("opportunity_handler"),
		queue: queue,
		now:   time.Now,
	}
}

// HandleOpportunity 过滤后转成订单入队, 返回订单 ID; 被过滤时返回空字符串
func (h *OpportunityHandler) HandleOpportunity(ev model.OpportunityEvent) (string, error) {
	if err := h.validate(ev); err != nil {
		h.tl.Debug("opportunity dropped", zap.String("token", ev.Opportunity.TokenAddress), zap.Error(err))
		return "", err
	}

	strategy, ok := ev.ExecutionStrategy()
	if !ok {
		return "", errs.Validationf("handler.opportunity", "unsupported strategy %q", ev.Strategy)
	}

	order := model.NewOrder(ev.Opportunity, strategy)
	if ev.TimeoutMs > 0 {
		order.Timeout = time.Duration(ev.TimeoutMs) * time.Millisecond
	}

	id, err := h.queue.Submit(order)
	if err != nil {
		if errors.Is(err, errs.ErrQueueClosed) {
			h.tl.Warn("queue closed, opportunity discarded", zap.String("token", ev.Opportunity.TokenAddress))
		} else {
			h.tl.Warn("submit order failed", zap.String("token", ev.Opportunity.TokenAddress), zap.Error(err))
		}
		return "", err
	}

	h.tl.Info("order submitted from opportunity",
		zap.String("order_id", id),
		zap.String("token", ev.Opportunity.TokenAddress),
		zap.String("symbol", ev.Opportunity.Symbol),
		zap.String("priority", order.Priority.String()),
		zap.Float64("expected_profit", ev.Opportunity.ExpectedProfit))
	return id, nil
}

func (h *OpportunityHandler) validate(ev model.OpportunityEvent) error {
	const op = "handler.opportunity"

	if ev.Type != model.OPPORTUNITY_EVENT_TYPE {
		return errs.Validationf(op, "unexpected event type %q", ev.Type)
	}
	opp := ev.Opportunity
	if !common.IsHexAddress(opp.TokenAddress) {
		return errs.Validationf(op, "invalid token address %q", opp.TokenAddress)
	}
	// 过滤过期机会
	if !opp.DetectedAt.IsZero() && h.now().Sub(opp.DetectedAt) > MAX_OPPORTUNITY_AGE {
		return errs.Validationf(op, "opportunity detected %s ago", h.now().Sub(opp.DetectedAt).Truncate(time.Second))
	}
	if opp.ExpectedProfit <= 0 {
		return errs.Validationf(op, "non-positive expected profit %v", opp.ExpectedProfit)
	}
	if opp.Confidence < MIN_CONFIDENCE {
		return errs.Validationf(op, "confidence %v below %v", opp.Confidence, MIN_CONFIDENCE)
	}
	return nil
}
