package chain

import (
	"context"
	"fmt"
	"math/big"

	"cryptojackal/internal/executor/errs"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Provider 执行核心依赖的链上读写能力, *ethclient.Client 直接满足
type Provider interface {
	ethereum.ContractCaller

	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

var _ Provider = (*ethclient.Client)(nil)

// GasSample 最新区块的 gas 采样
type GasSample struct {
	BlockNumber  uint64
	BaseFee      *big.Int
	PriorityFee  *big.Int
	GasUsedRatio float64
}

// LatestGasSample 读取最新区块头和建议小费
func LatestGasSample(ctx context.Context, p Provider) (GasSample, error) {
	const op = "chain.latest_gas_sample"

	header, err := p.HeaderByNumber(ctx, nil)
	if err != nil {
		return GasSample{}, errs.Network(op, fmt.Errorf("header: %w", err))
	}
	if header.BaseFee == nil {
		return GasSample{}, errs.Validationf(op, "block %v has no base fee, pre-London chain", header.Number)
	}
	tip, err := p.SuggestGasTipCap(ctx)
	if err != nil {
		return GasSample{}, errs.Network(op, fmt.Errorf("tip cap: %w", err))
	}

	var ratio float64
	if header.GasLimit > 0 {
		ratio = float64(header.GasUsed) / float64(header.GasLimit)
	}
	return GasSample{
		BlockNumber:  header.Number.Uint64(),
		BaseFee:      header.BaseFee,
		PriorityFee:  tip,
		GasUsedRatio: ratio,
	}, nil
}
