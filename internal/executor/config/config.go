package config

import (
	"fmt"
	"strings"
	"time"

	"cryptojackal/internal/executor/errs"
	"cryptojackal/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config 定义整个配置的结构
type Config struct {
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	SelectDB      SelectDBConfig      `mapstructure:"selectdb"`
	Monitor       MonitorConfig       `mapstructure:"monitor"`
	Chain         ChainConfig         `mapstructure:"chain"`
	Wallet        WalletConfig        `mapstructure:"wallet"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Gas           GasConfig           `mapstructure:"gas"`
	PriceFeed     PriceFeedConfig     `mapstructure:"price_feed"`
	Transaction   TransactionConfig   `mapstructure:"transaction"`
	CoinGecko     CoinGeckoConfig     `mapstructure:"coingecko"`
	DexScreener   DexScreenerConfig   `mapstructure:"dexscreener"`
	Moralis       MoralisConfig       `mapstructure:"moralis"`
}

// KafkaConfig Kafka 配置, Brokers 为空时不启用
type KafkaConfig struct {
	Brokers          string `mapstructure:"brokers"`
	TopicOpportunity string `mapstructure:"topic_opportunity"`
	TopicOrderEvent  string `mapstructure:"topic_order_event"`
	GroupID          string `mapstructure:"group_id"`
	WorkerNum        int    `mapstructure:"worker_num"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	DBPrice  int    `mapstructure:"db_price"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	DSN           string `mapstructure:"dsn"`
	RetentionDays int    `mapstructure:"retention_days"` // 归档订单和价格快照保留天数, 0 不清理
}

type ElasticsearchConfig struct {
	Addresses       []string `mapstructure:"addresses"`
	Username        string   `mapstructure:"username"`
	Password        string   `mapstructure:"password"`
	AlertsIndexName string   `mapstructure:"alerts_index_name"`
}

// SelectDBConfig 价格快照分析库, BaseURL 为空时不写入
type SelectDBConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Database   string `mapstructure:"database"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	PriceTable string `mapstructure:"price_table"`
}

// LogConfig Log 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MonitorConfig struct {
	Enable         bool   `mapstructure:"enable"`
	PrometheusAddr string `mapstructure:"prometheus_addr"`
}

// ChainConfig 链与合约地址
type ChainConfig struct {
	RpcUrl           string `mapstructure:"rpc_url"`
	ChainID          int64  `mapstructure:"chain_id"`
	RouterAddress    string `mapstructure:"router_address"`
	FactoryAddress   string `mapstructure:"factory_address"`
	WethAddress      string `mapstructure:"weth_address"`
	QuoteToken       string `mapstructure:"quote_token"` // 链上报价使用的稳定币
	QuoteDecimals    uint8  `mapstructure:"quote_decimals"`
	GasSampleSeconds int    `mapstructure:"gas_sample_seconds"`
}

// WalletConfig 外部签名服务, 进程内不持有私钥
type WalletConfig struct {
	Address   string `mapstructure:"address"`
	SignerUrl string `mapstructure:"signer_url"`
	Timeout   int    `mapstructure:"timeout"` // 秒
}

type QueueConfig struct {
	MaxConcurrentExecutions int     `mapstructure:"max_concurrent_executions"`
	ExecutionTimeoutSeconds int     `mapstructure:"execution_timeout_seconds"`
	MaxRetryAttempts        int     `mapstructure:"max_retry_attempts"`
	RetryBaseDelayMs        int     `mapstructure:"retry_base_delay_ms"`
	RetryMaxDelayMs         int     `mapstructure:"retry_max_delay_ms"`
	AdmissionIntervalMs     int     `mapstructure:"admission_interval_ms"`
	MetricsIntervalSeconds  int     `mapstructure:"metrics_interval_seconds"`
	ArchiveSize             int     `mapstructure:"archive_size"`
	TradeAmountWei          string  `mapstructure:"trade_amount_wei"`
	MaxSlippage             float64 `mapstructure:"max_slippage"`
	MinPriceConfidence      float64 `mapstructure:"min_price_confidence"`
	MaxPriceAgeSeconds      int     `mapstructure:"max_price_age_seconds"`
	MaxGasCostEth           string  `mapstructure:"max_gas_cost_eth"`
}

// StrategyMultiplier 单个 gas 策略的倍数
type StrategyMultiplier struct {
	Base       float64 `mapstructure:"base"`
	Priority   float64 `mapstructure:"priority"`
	Confidence float64 `mapstructure:"confidence"`
}

type GasConfig struct {
	MaxBaseFeeGwei           float64                       `mapstructure:"max_base_fee_gwei"`
	MaxPriorityFeeGwei       float64                       `mapstructure:"max_priority_fee_gwei"`
	TargetConfirmationBlocks int                           `mapstructure:"target_confirmation_blocks"`
	HistoryRetentionHours    int                           `mapstructure:"history_retention_hours"`
	MaxSamples               int                           `mapstructure:"max_samples"`
	UpdateIntervalSeconds    int                           `mapstructure:"update_interval_seconds"`
	VolatilityThreshold      float64                       `mapstructure:"volatility_threshold"`
	CongestionThreshold      float64                       `mapstructure:"congestion_threshold"`
	DefaultGasLimit          uint64                        `mapstructure:"default_gas_limit"`
	Multipliers              map[string]StrategyMultiplier `mapstructure:"multipliers"`
}

type AlertThresholds struct {
	PriceChangePercent  float64 `mapstructure:"price_change_percent"`
	VolumeChangePercent float64 `mapstructure:"volume_change_percent"`
	Volatility          float64 `mapstructure:"volatility"`
}

type PriceFeedConfig struct {
	UpdateIntervalSeconds int                `mapstructure:"update_interval_seconds"`
	AggregationTimeoutMs  int                `mapstructure:"aggregation_timeout_ms"`
	OutlierThreshold      float64            `mapstructure:"outlier_threshold"`
	MaxRetryAttempts      int                `mapstructure:"max_retry_attempts"`
	RetryDelayMs          int                `mapstructure:"retry_delay_ms"`
	MaxHistory            int                `mapstructure:"max_history"`
	MaxAlerts             int                `mapstructure:"max_alerts"`
	EnabledSources        []string           `mapstructure:"enabled_sources"`
	SourceConfidence      map[string]float64 `mapstructure:"source_confidence"`
	Tokens                []string           `mapstructure:"tokens"`
	Alerts                AlertThresholds    `mapstructure:"alerts"`
}

type TransactionConfig struct {
	DefaultGasLimit       uint64  `mapstructure:"default_gas_limit"`
	MaxGasLimit           uint64  `mapstructure:"max_gas_limit"`
	GasBufferRatio        float64 `mapstructure:"gas_buffer_ratio"`
	TimeoutSeconds        int     `mapstructure:"timeout_seconds"`
	ConfirmationBlocks    uint64  `mapstructure:"confirmation_blocks"`
	ReceiptPollIntervalMs int     `mapstructure:"receipt_poll_interval_ms"`
	ArchiveSize           int     `mapstructure:"archive_size"`
}

type CoinGeckoConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Platform  string `mapstructure:"platform"`
	RateLimit int    `mapstructure:"rate_limit"` // 每分钟
	Timeout   int    `mapstructure:"timeout"`    // 秒
}

type DexScreenerConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	ChainID   string `mapstructure:"chain_id"`
	RateLimit int    `mapstructure:"rate_limit"`
	Timeout   int    `mapstructure:"timeout"`
}

// MoralisConfig APIKey 为空时不创建 moralis 数据源
type MoralisConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Chain     string `mapstructure:"chain"`
	RateLimit int    `mapstructure:"rate_limit"`
	Timeout   int    `mapstructure:"timeout"`
}

func InitConfig() Config {
	config := Default()

	viper.SetConfigName("config.executor")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config/")

	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}

	if err := mapstructure.Decode(viper.AllSettings(), &config); err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}

	if err := config.Validate(); err != nil {
		panic(err)
	}

	return config
}

// WatchConfig 只热更新日志级别, 其余配置启动后保持不变
func WatchConfig(config *Config) {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		var changed Config
		if err := mapstructure.Decode(viper.AllSettings(), &changed); err != nil {
			return
		}
		if changed.Log.Level != "" && changed.Log.Level != config.Log.Level {
			logger.SetLogLevel(changed.Log.Level)
		}
	})
}

// Validate 配置错误在启动时直接失败
func (c Config) Validate() error {
	const op = "config.validate"

	q := c.Queue
	if q.MaxConcurrentExecutions <= 0 {
		return errs.Configurationf(op, "queue.max_concurrent_executions must be positive, got %d", q.MaxConcurrentExecutions)
	}
	if q.MaxRetryAttempts <= 0 {
		return errs.Configurationf(op, "queue.max_retry_attempts must be positive, got %d", q.MaxRetryAttempts)
	}
	if q.ExecutionTimeoutSeconds <= 0 {
		return errs.Configurationf(op, "queue.execution_timeout_seconds must be positive")
	}
	if q.MaxSlippage < 0 || q.MaxSlippage >= 1 {
		return errs.Configurationf(op, "queue.max_slippage must be in [0,1), got %v", q.MaxSlippage)
	}

	g := c.Gas
	if g.MaxBaseFeeGwei <= 0 || g.MaxPriorityFeeGwei <= 0 {
		return errs.Configurationf(op, "gas fee ceilings must be positive")
	}
	if g.CongestionThreshold <= 0.5 || g.CongestionThreshold >= 0.95 {
		return errs.Configurationf(op, "gas.congestion_threshold must be in (0.5, 0.95), got %v", g.CongestionThreshold)
	}
	if err := validateMultipliers(g.Multipliers); err != nil {
		return errs.Configuration(op, err)
	}

	p := c.PriceFeed
	if p.OutlierThreshold <= 0 {
		return errs.Configurationf(op, "price_feed.outlier_threshold must be positive")
	}
	if p.MaxRetryAttempts <= 0 {
		return errs.Configurationf(op, "price_feed.max_retry_attempts must be positive")
	}
	if len(p.EnabledSources) == 0 {
		return errs.Configurationf(op, "price_feed.enabled_sources is empty")
	}

	t := c.Transaction
	if t.MaxGasLimit == 0 || t.DefaultGasLimit > t.MaxGasLimit {
		return errs.Configurationf(op, "transaction.default_gas_limit %d exceeds max_gas_limit %d", t.DefaultGasLimit, t.MaxGasLimit)
	}
	if t.GasBufferRatio < 0 {
		return errs.Configurationf(op, "transaction.gas_buffer_ratio must not be negative")
	}

	for name, addr := range map[string]string{
		"chain.router_address":  c.Chain.RouterAddress,
		"chain.factory_address": c.Chain.FactoryAddress,
		"chain.weth_address":    c.Chain.WethAddress,
		"chain.quote_token":     c.Chain.QuoteToken,
		"wallet.address":        c.Wallet.Address,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return errs.Configurationf(op, "%s is not a valid address: %q", name, addr)
		}
	}
	for _, token := range p.Tokens {
		if !common.IsHexAddress(token) {
			return errs.Configurationf(op, "price_feed.tokens contains invalid address %q", token)
		}
	}
	return nil
}

// validateMultipliers 保证策略越激进费用越高
func validateMultipliers(m map[string]StrategyMultiplier) error {
	order := []string{"conservative", "standard", "aggressive", "emergency"}
	var prev *StrategyMultiplier
	for _, name := range order {
		cur, ok := m[name]
		if !ok {
			return fmt.Errorf("gas.multipliers.%s is missing", name)
		}
		if cur.Base <= 0 || cur.Priority <= 0 || cur.Confidence <= 0 || cur.Confidence > 1 {
			return fmt.Errorf("gas.multipliers.%s has invalid values %+v", name, cur)
		}
		if prev != nil && (cur.Base < prev.Base || cur.Priority < prev.Priority) {
			return fmt.Errorf("gas.multipliers.%s must not be lower than the previous strategy", name)
		}
		c := cur
		prev = &c
	}
	return nil
}

func (q QueueConfig) ExecutionTimeout() time.Duration {
	return time.Duration(q.ExecutionTimeoutSeconds) * time.Second
}

func (q QueueConfig) RetryBaseDelay() time.Duration {
	return time.Duration(q.RetryBaseDelayMs) * time.Millisecond
}

func (q QueueConfig) RetryMaxDelay() time.Duration {
	return time.Duration(q.RetryMaxDelayMs) * time.Millisecond
}

func (q QueueConfig) AdmissionInterval() time.Duration {
	return time.Duration(q.AdmissionIntervalMs) * time.Millisecond
}

func (q QueueConfig) MaxPriceAge() time.Duration {
	return time.Duration(q.MaxPriceAgeSeconds) * time.Second
}

func (g GasConfig) Retention() time.Duration {
	return time.Duration(g.HistoryRetentionHours) * time.Hour
}

func (g GasConfig) UpdateInterval() time.Duration {
	return time.Duration(g.UpdateIntervalSeconds) * time.Second
}

func (p PriceFeedConfig) UpdateInterval() time.Duration {
	return time.Duration(p.UpdateIntervalSeconds) * time.Second
}

func (p PriceFeedConfig) AggregationTimeout() time.Duration {
	return time.Duration(p.AggregationTimeoutMs) * time.Millisecond
}

func (p PriceFeedConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelayMs) * time.Millisecond
}

// SourceEnabled 判断数据源是否启用
func (p PriceFeedConfig) SourceEnabled(name string) bool {
	for _, s := range p.EnabledSources {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

func (t TransactionConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

func (t TransactionConfig) ReceiptPollInterval() time.Duration {
	return time.Duration(t.ReceiptPollIntervalMs) * time.Millisecond
}

func (p PostgresConfig) Retention() time.Duration {
	return time.Duration(p.RetentionDays) * 24 * time.Hour
}

func (c ChainConfig) GasSampleInterval() time.Duration {
	return time.Duration(c.GasSampleSeconds) * time.Second
}
