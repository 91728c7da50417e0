package main

import (
	"context"
	"os"
	"time"

	"cryptojackal/internal/executor/config"
	"cryptojackal/internal/executor/gas"
	"cryptojackal/internal/executor/job"
	"cryptojackal/internal/executor/model"
	"cryptojackal/pkg/evm_client"
	"cryptojackal/pkg/logger"
	"cryptojackal/pkg/utils/onchain"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// 一次性任务: 采样当前 gas 并输出各策略建议, 以及执行钱包余额

func main() {
	startTime := time.Now()
	// 初始化配置文件
	cfg := config.InitConfig()

	// 初始化 trace provider
	logger.InitTrace("cryptojackal", "inspect")
	// 启动主 span
	ctx, span := logger.StartSpan(context.Background(), "main", "main")
	defer span.End()

	// 创建 root logger 并注入 trace 上下文
	rootLogger := logger.NewLogger("inspect")
	logger.SetLogLevel(cfg.Log.Level)
	tl := logger.WithTrace(ctx, rootLogger)

	client, err := evm_client.Dial(ctx, cfg.Chain.RpcUrl, cfg.Chain.ChainID)
	if err != nil {
		tl.Error("Failed to connect rpc", zap.Error(err))
		os.Exit(1)
	}
	defer client.Close()

	optimizer := gas.NewOptimizer(cfg.Gas, tl)
	if err := job.NewGasSampler(client, optimizer, tl).Run(ctx); err != nil {
		tl.Error("Failed to sample gas", zap.Error(err))
		os.Exit(1)
	}

	strategies := []model.GasStrategy{model.ConservativeGas(), model.StandardGas(), model.AggressiveGas(), model.EmergencyGas()}
	for _, s := range strategies {
		rec, err := optimizer.Recommend(s)
		if err != nil {
			tl.Warn("❌ recommend failed", zap.String("strategy", s.String()), zap.Error(err))
			continue
		}
		tl.Info("gas recommendation",
			zap.String("strategy", s.String()),
			zap.String("base_fee", rec.BaseFee.String()),
			zap.String("priority_fee", rec.PriorityFee.String()),
			zap.String("max_fee", rec.MaxFee.String()),
			zap.Uint64("gas_limit", rec.GasLimit),
			zap.String("estimated_cost_eth", rec.EstimatedCostETH.String()),
			zap.Duration("estimated_confirmation", rec.EstimatedConfirmation))
	}

	if common.IsHexAddress(cfg.Wallet.Address) {
		tokens := make([]common.Address, 0, len(cfg.PriceFeed.Tokens)+1)
		tokens = append(tokens, common.HexToAddress(cfg.Chain.WethAddress))
		for _, t := range cfg.PriceFeed.Tokens {
			tokens = append(tokens, common.HexToAddress(t))
		}
		native, balances, err := onchain.WalletBalances(ctx, client, common.HexToAddress(cfg.Wallet.Address), tokens)
		if err != nil {
			tl.Warn("❌ wallet balance query incomplete", zap.Error(err))
		}
		eth, formatted := onchain.FormatBalances(native, balances)
		tl.Info("wallet balance", zap.String("wallet", cfg.Wallet.Address), zap.String("eth", eth.String()))
		for token, amount := range formatted {
			tl.Info("token balance", zap.String("token", token), zap.String("amount", amount.String()))
		}
	}

	tl.Info("Task completed successfully", zap.Duration("taken_time", time.Since(startTime)))
}
