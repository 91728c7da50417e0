package txlife

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"cryptojackal/internal/executor/chain"
	"cryptojackal/internal/executor/config"
	"cryptojackal/internal/executor/errs"
	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/monitor"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Wallet 外部签名能力, 执行核心不接触私钥
type Wallet interface {
	Address() common.Address
	SignTransaction(ctx context.Context, tx *types.Transaction, chainID *big.Int) ([]byte, error)
}

// GasAdvisor 费用建议来源, *gas.Optimizer 满足
type GasAdvisor interface {
	Recommend(strategy model.GasStrategy) (model.GasRecommendation, error)
}

// Lifecycle 交易状态机: 准备 -> 签名 -> 广播 -> 确认
type Lifecycle struct {
	cfg      config.TransactionConfig
	chainID  *big.Int
	encoder  encoder
	provider chain.Provider
	gas      GasAdvisor
	tl       *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	active  map[string]*model.TransactionRequest
	archive *lru.Cache[string, model.TransactionRequest]
	nonces  *nonceTracker

	metricsMu      sync.Mutex
	metrics        model.TransactionMetrics
	confirmTotalMs float64
	gasUsedTotal   float64
}

func NewLifecycle(cfg config.TransactionConfig, chainCfg config.ChainConfig, provider chain.Provider, gas GasAdvisor, logger *zap.Logger) (*Lifecycle, error) {
	size := cfg.ArchiveSize
	if size <= 0 {
		size = 1000
	}
	archive, err := lru.New[string, model.TransactionRequest](size)
	if err != nil {
		return nil, errs.Configuration("txlife.new", err)
	}
	return &Lifecycle{
		cfg:      cfg,
		chainID:  big.NewInt(chainCfg.ChainID),
		encoder:  newEncoder(common.HexToAddress(chainCfg.RouterAddress), common.HexToAddress(chainCfg.WethAddress)),
		provider: provider,
		gas:      gas,
		tl:       logger.Named("tx_lifecycle"),
		now:      time.Now,
		active:   make(map[string]*model.TransactionRequest),
		archive:  archive,
		nonces:   newNonceTracker(),
	}, nil
}

// Prepare 编码调用、估算 gas 并确定费用, 成功后请求停留在 Preparing
func (l *Lifecycle) Prepare(ctx context.Context, params model.TradeParams, strategy model.GasStrategy) (model.TransactionRequest, error) {
	const op = "txlife.prepare"
	now := l.now()
	deadline := params.Deadline
	if deadline.IsZero() {
		deadline = now.Add(l.cfg.Timeout())
	}

	req := &model.TransactionRequest{
		ID:                 uuid.NewString(),
		Kind:               params.Kind,
		From:               params.From,
		Strategy:           strategy,
		Deadline:           deadline,
		State:              model.TxPending,
		ConfirmationBlocks: l.cfg.ConfirmationBlocks,
		CreatedAt:          now,
	}
	l.mu.Lock()
	l.active[req.ID] = req
	l.mu.Unlock()

	l.metricsMu.Lock()
	l.metrics.TotalTransactions++
	l.metricsMu.Unlock()

	if err := l.transition(req.ID, model.TxPending, model.TxPreparing); err != nil {
		return model.TransactionRequest{}, err
	}

	c, err := l.encoder.encode(params, deadline)
	if err != nil {
		l.finish(req.ID, model.TxFailed, model.FAILURE_PREPARE, err.Error())
		return model.TransactionRequest{}, err
	}

	estimate, err := l.provider.EstimateGas(ctx, ethereum.CallMsg{From: params.From, To: &c.to, Value: c.value, Data: c.data})
	if err != nil {
		err = classifyRPC(op, fmt.Errorf("estimate gas: %w", err))
		l.finish(req.ID, model.TxFailed, model.FAILURE_PREPARE, err.Error())
		return model.TransactionRequest{}, err
	}
	gasLimit := l.bufferedGasLimit(estimate)

	maxFee, tip, err := l.fees(ctx, strategy)
	if err != nil {
		l.finish(req.ID, model.TxFailed, model.FAILURE_PREPARE, err.Error())
		return model.TransactionRequest{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if req.State != model.TxPreparing {
		return req.Clone(), errs.ErrCancelled
	}
	req.To = c.to
	req.Data = c.data
	req.Value = c.value
	req.GasLimit = gasLimit
	req.MaxFeePerGas = maxFee
	req.MaxPriorityFeePerGas = tip

	l.tl.Debug("transaction prepared",
		zap.String("tx_id", req.ID),
		zap.String("kind", req.Kind.String()),
		zap.Uint64("gas_limit", gasLimit),
		zap.String("max_fee", maxFee.String()),
		zap.String("strategy", strategy.String()))
	return req.Clone(), nil
}

// bufferedGasLimit 估算值加安全余量, 不超过上限
func (l *Lifecycle) bufferedGasLimit(estimate uint64) uint64 {
	if estimate == 0 {
		estimate = l.cfg.DefaultGasLimit
	}
	limit := uint64(float64(estimate) * (1 + l.cfg.GasBufferRatio))
	if l.cfg.MaxGasLimit > 0 && limit > l.cfg.MaxGasLimit {
		limit = l.cfg.MaxGasLimit
	}
	return limit
}

// fees 优先使用 gas 优化器, 无统计数据时退回节点建议价
func (l *Lifecycle) fees(ctx context.Context, strategy model.GasStrategy) (maxFee, tip *big.Int, err error) {
	const op = "txlife.fees"
	if l.gas != nil {
		rec, err := l.gas.Recommend(strategy)
		if err == nil {
			return rec.MaxFee, rec.PriorityFee, nil
		}
		if !errors.Is(err, errs.ErrGasUnavailable) {
			return nil, nil, err
		}
	}

	tip, err = l.provider.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, errs.Network(op, fmt.Errorf("suggest tip cap: %w", err))
	}
	price, err := l.provider.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nil, errs.Network(op, fmt.Errorf("suggest gas price: %w", err))
	}
	return new(big.Int).Add(price, tip), tip, nil
}

// Sign 分配 nonce 并交给钱包签名
func (l *Lifecycle) Sign(ctx context.Context, id string, wallet Wallet) ([]byte, error) {
	const op = "txlife.sign"
	if err := l.transition(id, model.TxPreparing, model.TxSigning); err != nil {
		return nil, err
	}

	l.mu.Lock()
	req, ok := l.active[id]
	if !ok {
		l.mu.Unlock()
		return nil, errs.ErrCancelled
	}
	from := req.From
	if from == (common.Address{}) {
		from = wallet.Address()
		req.From = from
	}
	snapshot := req.Clone()
	l.mu.Unlock()

	if from != wallet.Address() {
		err := errs.Validationf(op, "request from %s but wallet is %s", from.Hex(), wallet.Address().Hex())
		l.finish(id, model.TxFailed, model.FAILURE_SIGNING, err.Error())
		return nil, err
	}

	pending, err := l.provider.PendingNonceAt(ctx, from)
	if err != nil {
		err = errs.Network(op, fmt.Errorf("pending nonce: %w", err))
		l.finish(id, model.TxFailed, model.FAILURE_SIGNING, err.Error())
		return nil, err
	}
	// 同一钱包并发签名时 pending nonce 尚未包含未广播的交易
	nonce := l.nonces.take(id, from, pending)

	to := snapshot.To
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   l.chainID,
		Nonce:     nonce,
		GasTipCap: snapshot.MaxPriorityFeePerGas,
		GasFeeCap: snapshot.MaxFeePerGas,
		Gas:       snapshot.GasLimit,
		To:        &to,
		Value:     snapshot.Value,
		Data:      snapshot.Data,
	})

	signed, err := wallet.SignTransaction(ctx, tx, l.chainID)
	if err != nil {
		if errs.KindOf(err) == errs.KindUnknown {
			err = errs.Network(op, err)
		}
		l.finish(id, model.TxFailed, model.FAILURE_SIGNING, err.Error())
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if req.State != model.TxSigning {
		l.nonces.release(id)
		return nil, errs.ErrCancelled
	}
	req.Nonce = nonce
	return signed, nil
}

// Submit 广播已签名交易并记录哈希
func (l *Lifecycle) Submit(ctx context.Context, id string, signed []byte) (common.Hash, error) {
	const op = "txlife.submit"
	if err := l.expect(id, model.TxSigning); err != nil {
		l.nonces.release(id)
		return common.Hash{}, err
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(signed); err != nil {
		err = errs.Validation(op, fmt.Errorf("decode signed transaction: %w", err))
		l.finish(id, model.TxFailed, model.FAILURE_REJECTED, err.Error())
		return common.Hash{}, err
	}
	if err := l.provider.SendTransaction(ctx, tx); err != nil {
		err = classifyRPC(op, fmt.Errorf("send transaction: %w", err))
		l.finish(id, model.TxFailed, model.FAILURE_REJECTED, err.Error())
		return common.Hash{}, err
	}

	hash := tx.Hash()
	l.mu.Lock()
	req, ok := l.active[id]
	if ok {
		l.nonces.sent(id, req.From, tx.Nonce())
	} else if st, archived := l.archive.Peek(id); archived {
		l.nonces.sent(id, st.From, tx.Nonce())
	}
	if !ok || !req.State.CanTransition(model.TxSubmitted) {
		l.mu.Unlock()
		l.tl.Warn("transaction broadcast after cancel", zap.String("tx_id", id), zap.String("hash", hash.Hex()))
		return hash, errs.ErrCancelled
	}
	req.State = model.TxSubmitted
	req.TxHash = &hash
	req.Nonce = tx.Nonce()
	req.SubmittedAt = l.now()
	l.mu.Unlock()

	l.tl.Info("transaction submitted", zap.String("tx_id", id), zap.String("hash", hash.Hex()), zap.Uint64("nonce", tx.Nonce()))
	return hash, nil
}

// AwaitConfirmation 轮询回执直到达到确认深度、回滚、超时或被取消, 轮询期间不持锁
func (l *Lifecycle) AwaitConfirmation(ctx context.Context, id string, hash common.Hash) (model.TransactionRequest, error) {
	const op = "txlife.await"
	if err := l.expect(id, model.TxSubmitted); err != nil {
		return model.TransactionRequest{}, err
	}

	window := time.NewTimer(l.cfg.Timeout())
	defer window.Stop()
	poll := time.NewTicker(l.cfg.ReceiptPollInterval())
	defer poll.Stop()

	for {
		if err := l.expect(id, model.TxSubmitted); err != nil {
			if req, ok := l.Status(id); ok && req.State == model.TxCancelled {
				return req, errs.ErrCancelled
			}
			return model.TransactionRequest{}, err
		}

		done, req, err := l.checkReceipt(ctx, id, hash)
		if done {
			return req, err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				req, _ := l.finish(id, model.TxCancelled, model.FAILURE_CANCELLED, "context cancelled")
				return req, errs.ErrCancelled
			}
			req, _ := l.finish(id, model.TxTimeout, model.FAILURE_NO_RECEIPT, "deadline exceeded while awaiting receipt")
			return req, errs.Transaction(op, fmt.Errorf("%w: %w", errs.ErrNoReceipt, ctx.Err()))
		case <-window.C:
			msg := fmt.Sprintf("no receipt for %s within %s", hash.Hex(), l.cfg.Timeout())
			req, _ := l.finish(id, model.TxTimeout, model.FAILURE_NO_RECEIPT, msg)
			return req, errs.Transaction(op, fmt.Errorf("%w: %s", errs.ErrNoReceipt, msg))
		case <-poll.C:
		}
	}
}

// checkReceipt 返回 done=true 表示已进入终态
func (l *Lifecycle) checkReceipt(ctx context.Context, id string, hash common.Hash) (bool, model.TransactionRequest, error) {
	const op = "txlife.await"
	receipt, err := l.provider.TransactionReceipt(ctx, hash)
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil {
			l.tl.Debug("receipt query failed", zap.String("tx_id", id), zap.Error(err))
		}
		return false, model.TransactionRequest{}, nil
	}

	if receipt.Status == types.ReceiptStatusFailed {
		req, _ := l.finishWithReceipt(id, model.TxFailed, model.FAILURE_REVERTED, "execution reverted", receipt)
		return true, req, errs.Transaction(op, fmt.Errorf("%w: %s in block %v", errs.ErrReverted, hash.Hex(), receipt.BlockNumber))
	}

	required := l.cfg.ConfirmationBlocks
	if required > 1 && receipt.BlockNumber != nil {
		head, err := l.provider.BlockNumber(ctx)
		if err != nil {
			return false, model.TransactionRequest{}, nil
		}
		mined := receipt.BlockNumber.Uint64()
		if head < mined || head-mined+1 < required {
			return false, model.TransactionRequest{}, nil
		}
	}

	req, ok := l.finishWithReceipt(id, model.TxConfirmed, model.FAILURE_NONE, "", receipt)
	if !ok {
		return true, req, errs.ErrCancelled
	}
	return true, req, nil
}

// Cancel 协作式取消, 已发出的网络调用结果会被丢弃
func (l *Lifecycle) Cancel(id string) error {
	l.mu.Lock()
	req, ok := l.active[id]
	l.mu.Unlock()
	if !ok {
		if _, archived := l.archive.Peek(id); archived {
			return errs.ErrInvalidTransition
		}
		return errs.ErrNotFound
	}
	if _, ok := l.finish(req.ID, model.TxCancelled, model.FAILURE_CANCELLED, "cancelled by caller"); !ok {
		return errs.ErrInvalidTransition
	}
	return nil
}

// Status 先查活跃请求再查归档
func (l *Lifecycle) Status(id string) (model.TransactionRequest, bool) {
	l.mu.Lock()
	if req, ok := l.active[id]; ok {
		c := req.Clone()
		l.mu.Unlock()
		return c, true
	}
	l.mu.Unlock()
	return l.archive.Peek(id)
}

func (l *Lifecycle) Metrics() model.TransactionMetrics {
	l.metricsMu.Lock()
	defer l.metricsMu.Unlock()
	return l.metrics
}

func (l *Lifecycle) expect(id string, state model.TxState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.active[id]
	if !ok {
		if _, archived := l.archive.Peek(id); archived {
			return errs.ErrInvalidTransition
		}
		return errs.ErrNotFound
	}
	if req.State != state {
		if req.State == model.TxCancelled {
			return errs.ErrCancelled
		}
		return fmt.Errorf("%w: %s is %s, want %s", errs.ErrInvalidTransition, id, req.State, state)
	}
	return nil
}

func (l *Lifecycle) transition(id string, from, to model.TxState) error {
	if err := l.expect(id, from); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.active[id]
	if !ok || req.State != from {
		return errs.ErrCancelled
	}
	req.State = to
	return nil
}

func (l *Lifecycle) finish(id string, state model.TxState, reason model.FailureReason, msg string) (model.TransactionRequest, bool) {
	return l.finishWithReceipt(id, state, reason, msg, nil)
}

// finishWithReceipt 进入终态并归档, 状态机不允许时返回 false
func (l *Lifecycle) finishWithReceipt(id string, state model.TxState, reason model.FailureReason, msg string, receipt *types.Receipt) (model.TransactionRequest, bool) {
	l.mu.Lock()
	req, ok := l.active[id]
	if !ok || !req.State.CanTransition(state) {
		var snapshot model.TransactionRequest
		if ok {
			snapshot = req.Clone()
		}
		l.mu.Unlock()
		return snapshot, false
	}
	req.State = state
	req.Failure = reason
	req.FailureMessage = msg
	req.CompletedAt = l.now()
	if receipt != nil {
		req.GasUsed = receipt.GasUsed
		if receipt.BlockNumber != nil {
			req.BlockNumber = receipt.BlockNumber.Uint64()
		}
	}
	delete(l.active, id)
	snapshot := req.Clone()
	l.archive.Add(id, snapshot)
	l.mu.Unlock()

	if snapshot.TxHash == nil {
		l.nonces.release(id)
	}

	l.record(snapshot)
	return snapshot, true
}

func (l *Lifecycle) record(req model.TransactionRequest) {
	monitor.TransactionsFinished.WithLabelValues(req.State.String(), string(req.Failure)).Inc()

	l.metricsMu.Lock()
	defer l.metricsMu.Unlock()
	m := &l.metrics
	switch req.State {
	case model.TxConfirmed:
		m.SuccessfulTransactions++
		if !req.SubmittedAt.IsZero() {
			elapsed := req.CompletedAt.Sub(req.SubmittedAt)
			monitor.TransactionConfirmationDuration.Observe(elapsed.Seconds())
			l.confirmTotalMs += float64(elapsed.Milliseconds())
			m.AverageConfirmationMs = l.confirmTotalMs / float64(m.SuccessfulTransactions)
		}
		l.gasUsedTotal += float64(req.GasUsed)
		m.AverageGasUsed = l.gasUsedTotal / float64(m.SuccessfulTransactions)
	case model.TxFailed:
		m.FailedTransactions++
	case model.TxCancelled:
		m.CancelledTransactions++
	case model.TxTimeout:
		m.TimeoutTransactions++
	}
	finished := m.SuccessfulTransactions + m.FailedTransactions + m.CancelledTransactions + m.TimeoutTransactions
	if finished > 0 {
		m.SuccessRate = float64(m.SuccessfulTransactions) / float64(finished)
	}

	l.tl.Info("transaction finished",
		zap.String("tx_id", req.ID),
		zap.String("state", req.State.String()),
		zap.String("reason", string(req.Failure)),
		zap.String("message", req.FailureMessage),
		zap.Uint64("gas_used", req.GasUsed))
}

// classifyRPC 节点返回的 JSON-RPC 错误 (回滚, nonce, 余额) 归为 Transaction, 其余视为网络错误
func classifyRPC(op string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) || strings.Contains(err.Error(), "execution reverted") {
		return errs.Transaction(op, err)
	}
	return errs.Network(op, err)
}
