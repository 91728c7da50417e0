package main

import (
	"context"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptojackal/internal/executor"
	"cryptojackal/internal/executor/config"
	"cryptojackal/pkg/logger"

	"go.uber.org/zap"
)

const SHUTDOWN_TIMEOUT = 30 * time.Second

func main() {
	// 初始化配置文件
	cfg := config.InitConfig()

	// 初始化 trace provider
	logger.InitTrace("cryptojackal", "executor")
	// 启动主 span
	ctx, span := logger.StartSpan(context.Background(), "main", "main")
	defer span.End()

	// 创建 root logger 并注入 trace 上下文
	rootLogger := logger.NewLogger("executor")
	logger.SetLogLevel(cfg.Log.Level)
	tl := logger.WithTrace(ctx, rootLogger)

	// 启动配置热加载监听
	go config.WatchConfig(&cfg)

	// 初始化executor
	core, err := executor.New(cfg, tl)
	if err != nil {
		tl.Error("Failed to build executor", zap.Error(err))
		os.Exit(1)
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		tl.Info("Starting cryptojackal executor...")
		core.Start(runCtx)
	}()

	// 监听操作系统信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	tl.Info("Received shutdown signal, starting graceful shutdown...")

	// 先停止调度, 再在超时内排空执行中的订单
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer stopCancel()
	core.Stop(stopCtx)

	tl.Info("Shutting down all cores...")
}
