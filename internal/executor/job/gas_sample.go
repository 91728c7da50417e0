package job

import (
	"context"
	"math/big"

	"cryptojackal/internal/executor/chain"

	"go.uber.org/zap"
)

// SampleRecorder *gas.Optimizer 满足
type SampleRecorder interface {
	RecordSample(baseFee, priorityFee *big.Int, blockNumber uint64, gasUsedRatio float64) error
}

// GasSampler 每个区块间隔读取一次最新 gas 数据喂给优化器
type GasSampler struct {
	provider  chain.Provider
	optimizer SampleRecorder
	logger    *zap.Logger
	lastBlock uint64
}

func NewGasSampler(provider chain.Provider, optimizer SampleRecorder, logger *zap.Logger) *GasSampler {
	return &GasSampler{provider: provider, optimizer: optimizer, logger: logger.Named("gas_sampler")}
}

// Run 同一区块只记录一次
func (j *GasSampler) Run(ctx context.Context) error {
	sample, err := chain.LatestGasSample(ctx, j.provider)
	if err != nil {
		return err
	}
	if sample.BlockNumber == j.lastBlock {
		return nil
	}
	if err := j.optimizer.RecordSample(sample.BaseFee, sample.PriorityFee, sample.BlockNumber, sample.GasUsedRatio); err != nil {
		return err
	}
	j.lastBlock = sample.BlockNumber
	j.logger.Debug("gas sample recorded",
		zap.Uint64("block", sample.BlockNumber),
		zap.String("base_fee", sample.BaseFee.String()),
		zap.String("priority_fee", sample.PriorityFee.String()),
		zap.Float64("gas_used_ratio", sample.GasUsedRatio))
	return nil
}
