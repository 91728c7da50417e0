package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger   = zap.NewNop()
	logLevel = zap.NewAtomicLevel()
)

// Options 日志输出配置
type Options struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Console    bool
}

func defaultOptions() Options {
	return Options{
		Dir:        "logs",
		MaxSizeMB:  500,
		MaxBackups: 7,
		MaxAgeDays: 7,
		Console:    true,
	}
}

// NewLogger 创建文件 + 控制台双输出的 logger, 文件按大小轮转
func NewLogger(serviceName string, opts ...func(*Options)) *zap.Logger {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	if err := os.MkdirAll(o.Dir, 0755); err != nil {
		panic(err)
	}
	logFile := filepath.Join(o.Dir, serviceName+".log")

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.LevelKey = "level"
	encoderConfig.MessageKey = "msg"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)

	var writer io.Writer = &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    o.MaxSizeMB, // megabytes
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays, // days
		Compress:   true,
	}

	cores := []zapcore.Core{zapcore.NewCore(jsonEncoder, zapcore.AddSync(writer), logLevel)}
	if o.Console {
		consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), zap.InfoLevel))
	}

	logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller()).With(zap.String("service", serviceName))
	return logger
}

// WithDir 修改日志目录
func WithDir(dir string) func(*Options) {
	return func(o *Options) { o.Dir = dir }
}

// WithoutConsole 只写文件
func WithoutConsole() func(*Options) {
	return func(o *Options) { o.Console = false }
}

func SetLogLevel(level string) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return
	}
	logLevel.SetLevel(zapLevel)
	logger.Info("Log level set to", zap.String("level", level))
}

// WithTrace 注入 trace_id/span_id, 没有有效 span 时原样返回
func WithTrace(ctx context.Context, l *zap.Logger) *zap.Logger {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return l
	}
	return l.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}
