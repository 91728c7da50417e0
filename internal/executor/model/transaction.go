package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type TxKind uint8

const (
	TxSwap TxKind = iota
	TxApprove
	TxTransfer
	TxCustom
)

func (k TxKind) String() string {
	switch k {
	case TxSwap:
		return "swap"
	case TxApprove:
		return "approve"
	case TxTransfer:
		return "transfer"
	default:
		return "custom"
	}
}

type TxState uint8

const (
	TxPending TxState = iota
	TxPreparing
	TxSigning
	TxSubmitted
	TxConfirmed
	TxFailed
	TxCancelled
	TxTimeout
)

func (s TxState) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxPreparing:
		return "preparing"
	case TxSigning:
		return "signing"
	case TxSubmitted:
		return "submitted"
	case TxConfirmed:
		return "confirmed"
	case TxFailed:
		return "failed"
	case TxCancelled:
		return "cancelled"
	case TxTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

func (s TxState) Terminal() bool {
	return s >= TxConfirmed
}

var txTransitions = map[TxState][]TxState{
	TxPending:   {TxPreparing, TxFailed, TxCancelled},
	TxPreparing: {TxSigning, TxFailed, TxCancelled},
	TxSigning:   {TxSubmitted, TxFailed, TxCancelled},
	TxSubmitted: {TxConfirmed, TxFailed, TxCancelled, TxTimeout},
}

func (s TxState) CanTransition(to TxState) bool {
	for _, next := range txTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// FailureReason 终态失败分类
type FailureReason string

const (
	FAILURE_NONE       FailureReason = ""
	FAILURE_REVERTED   FailureReason = "reverted"
	FAILURE_NO_RECEIPT FailureReason = "no_receipt"
	FAILURE_PREPARE    FailureReason = "prepare_failed"
	FAILURE_SIGNING    FailureReason = "signing_failed"
	FAILURE_REJECTED   FailureReason = "rejected"
	FAILURE_CANCELLED  FailureReason = "cancelled"
)

// TradeParams 构造交易所需参数, 按 Kind 使用不同字段
type TradeParams struct {
	Kind TxKind
	From common.Address

	// swap
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Recipient    common.Address

	// approve: Token 授权给 Spender 数量 AmountIn
	Token   common.Address
	Spender common.Address

	// transfer 使用 Recipient + Value; custom 使用 To + Data + Value
	To    common.Address
	Data  []byte
	Value *big.Int

	Deadline time.Time
}

// TransactionRequest 可签名的交易请求, 由交易生命周期独占
type TransactionRequest struct {
	ID                   string
	Kind                 TxKind
	From                 common.Address
	To                   common.Address
	Data                 []byte
	Value                *big.Int
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Strategy             GasStrategy
	Nonce                uint64
	Deadline             time.Time
	State                TxState
	Failure              FailureReason
	FailureMessage       string
	TxHash               *common.Hash
	ConfirmationBlocks   uint64
	BlockNumber          uint64
	GasUsed              uint64
	CreatedAt            time.Time
	SubmittedAt          time.Time
	CompletedAt          time.Time
}

// Clone 返回副本, 外部只读
func (r *TransactionRequest) Clone() TransactionRequest {
	c := *r
	if r.Data != nil {
		c.Data = append([]byte(nil), r.Data...)
	}
	if r.TxHash != nil {
		h := *r.TxHash
		c.TxHash = &h
	}
	return c
}
