package config

// 主网默认合约地址
const (
	UNISWAP_V2_ROUTER  = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
	UNISWAP_V2_FACTORY = "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
	WETH_ADDRESS       = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	USDC_ADDRESS       = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

// Default 所有可选项的默认值, 配置文件只需覆盖差异部分
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Kafka: KafkaConfig{
			TopicOpportunity: "cryptojackal.opportunity",
			TopicOrderEvent:  "cryptojackal.order_event",
			GroupID:          "cryptojackal-executor",
			WorkerNum:        4,
		},
		Postgres:      PostgresConfig{RetentionDays: 30},
		Elasticsearch: ElasticsearchConfig{AlertsIndexName: "cryptojackal_price_alerts"},
		SelectDB:      SelectDBConfig{Database: "cryptojackal", PriceTable: "price_snapshot"},
		Monitor:       MonitorConfig{Enable: true, PrometheusAddr: ":9102"},
		Chain: ChainConfig{
			ChainID:          1,
			RouterAddress:    UNISWAP_V2_ROUTER,
			FactoryAddress:   UNISWAP_V2_FACTORY,
			WethAddress:      WETH_ADDRESS,
			QuoteToken:       USDC_ADDRESS,
			QuoteDecimals:    6,
			GasSampleSeconds: 12,
		},
		Wallet: WalletConfig{Timeout: 10},
		Queue: QueueConfig{
			MaxConcurrentExecutions: 5,
			ExecutionTimeoutSeconds: 30,
			MaxRetryAttempts:        3,
			RetryBaseDelayMs:        500,
			RetryMaxDelayMs:         8000,
			AdmissionIntervalMs:     100,
			MetricsIntervalSeconds:  10,
			ArchiveSize:             1000,
			TradeAmountWei:          "100000000000000000", // 0.1 ETH
			MaxSlippage:             0.02,
			MinPriceConfidence:      0.5,
			MaxPriceAgeSeconds:      60,
			MaxGasCostEth:           "0.05",
		},
		Gas: GasConfig{
			MaxBaseFeeGwei:           200,
			MaxPriorityFeeGwei:       50,
			TargetConfirmationBlocks: 3,
			HistoryRetentionHours:    24,
			MaxSamples:               10000,
			UpdateIntervalSeconds:    15,
			VolatilityThreshold:      0.20,
			CongestionThreshold:      0.80,
			DefaultGasLimit:          200000,
			Multipliers: map[string]StrategyMultiplier{
				"conservative": {Base: 1.0, Priority: 0.8, Confidence: 0.7},
				"standard":     {Base: 1.1, Priority: 1.0, Confidence: 0.8},
				"aggressive":   {Base: 1.3, Priority: 1.5, Confidence: 0.9},
				"emergency":    {Base: 1.5, Priority: 2.0, Confidence: 0.95},
			},
		},
		PriceFeed: PriceFeedConfig{
			UpdateIntervalSeconds: 5,
			AggregationTimeoutMs:  2000,
			OutlierThreshold:      3.0,
			MaxRetryAttempts:      3,
			RetryDelayMs:          1000,
			MaxHistory:            1000,
			MaxAlerts:             100,
			EnabledSources:        []string{"coingecko", "dexscreener", "uniswap_v2"},
			SourceConfidence: map[string]float64{
				"coingecko":   0.9,
				"dexscreener": 0.75,
				"uniswap_v2":  0.8,
				"moralis":     0.8,
			},
			Alerts: AlertThresholds{
				PriceChangePercent:  5.0,
				VolumeChangePercent: 200.0,
				Volatility:          0.5,
			},
		},
		Transaction: TransactionConfig{
			DefaultGasLimit:       200000,
			MaxGasLimit:           500000,
			GasBufferRatio:        0.10,
			TimeoutSeconds:        300,
			ConfirmationBlocks:    3,
			ReceiptPollIntervalMs: 2000,
			ArchiveSize:           1000,
		},
		CoinGecko: CoinGeckoConfig{
			BaseURL:   "https://api.coingecko.com/api/v3",
			Platform:  "ethereum",
			RateLimit: 30,
			Timeout:   10,
		},
		DexScreener: DexScreenerConfig{
			BaseURL:   "https://api.dexscreener.com",
			ChainID:   "ethereum",
			RateLimit: 300,
			Timeout:   10,
		},
		Moralis: MoralisConfig{
			BaseURL:   "https://deep-index.moralis.io",
			Chain:     "eth",
			RateLimit: 60,
			Timeout:   10,
		},
	}
}
