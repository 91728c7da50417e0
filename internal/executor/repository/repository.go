package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"cryptojackal/internal/executor/config"
	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/writer/alert"
	"cryptojackal/pkg/database"
	"cryptojackal/pkg/elasticsearch"
	"cryptojackal/pkg/evm_client"
	selectdbclient "cryptojackal/pkg/selectdb_client"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var once sync.Once
var r *repositoryImpl

func New(cfg config.Config, logger *zap.Logger) Repository {
	once.Do(func() {
		r = &repositoryImpl{
			cfg:    cfg,
			logger: logger.Named("repository"),
		}
		r.init()
	})
	return r
}

type repositoryImpl struct {
	cfg       config.Config
	logger    *zap.Logger
	db        *gorm.DB
	mainRdb   *redis.Client
	priceRdb  *redis.Client
	mq        *kafka.Writer
	es        *elasticsearch.Client
	selectDB  *selectdbclient.Client
	ethClient *ethclient.Client
}

func (r *repositoryImpl) init() {
	var err error

	// 初始化 PG（可选，DSN 为空则跳过）
	if strings.TrimSpace(r.cfg.Postgres.DSN) != "" {
		r.db, err = database.InitPG(r.cfg.Postgres.DSN, &model.ExecutedOrder{}, &model.PriceSnapshot{})
		if err != nil {
			panic(err)
		}
	} else {
		r.logger.Info("postgres dsn empty, order archive and price snapshots disabled")
	}

	// 初始化 Main RDB
	r.mainRdb = redis.NewClient(&redis.Options{
		Addr:     r.cfg.Redis.Address,
		Password: r.cfg.Redis.Password,
		DB:       r.cfg.Redis.DB,
		PoolSize: 20,
	})
	if err := r.mainRdb.Ping(context.Background()).Err(); err != nil {
		r.logger.Warn("failed to connect to redis, continue", zap.Error(err))
	}

	// 初始化 Price RDB
	r.priceRdb = redis.NewClient(&redis.Options{
		Addr:     r.cfg.Redis.Address,
		Password: r.cfg.Redis.Password,
		DB:       r.cfg.Redis.DBPrice,
	})
	if err := r.priceRdb.Ping(context.Background()).Err(); err != nil {
		r.logger.Warn("failed to connect to price redis, continue", zap.Error(err))
	}

	if strings.TrimSpace(r.cfg.Kafka.Brokers) != "" {
		brokers := strings.Split(r.cfg.Kafka.Brokers, ",")
		r.mq = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{}, // 同一订单的事件进入同一分区
			BatchSize:    100,
			BatchBytes:   1024 * 1024, // 1MB
			RequiredAcks: kafka.RequireOne,
			Compression:  kafka.Snappy,
			MaxAttempts:  5,
			WriteTimeout: 500 * time.Millisecond,
		}
	} else {
		r.logger.Info("kafka brokers empty, order events stay local")
	}

	if len(r.cfg.Elasticsearch.Addresses) > 0 {
		r.es, err = elasticsearch.NewClient(elasticsearch.Config{
			Addresses: r.cfg.Elasticsearch.Addresses,
			Username:  r.cfg.Elasticsearch.Username,
			Password:  r.cfg.Elasticsearch.Password,
			Indexes: map[string]map[string]interface{}{
				r.cfg.Elasticsearch.AlertsIndexName: alert.AlertsIndexMapping,
			},
		}, r.logger.Named("es"))
		if err != nil {
			r.logger.Warn("failed to create elasticsearch client, alerts not indexed", zap.Error(err))
			r.es = nil
		}
	}

	// 初始化 SelectDB stream load（可选）
	if sc := r.cfg.SelectDB; strings.TrimSpace(sc.BaseURL) != "" {
		r.selectDB = selectdbclient.NewClient(sc.BaseURL, sc.Database, sc.Username, sc.Password)
	} else {
		r.logger.Info("selectdb base url empty, price analytics disabled")
	}

	// 初始化rpc client, 链 ID 不一致直接退出
	r.ethClient = evm_client.Init(r.cfg.Chain.RpcUrl, r.cfg.Chain.ChainID)
}

func (r *repositoryImpl) GetMainRDB() *redis.Client {
	return r.mainRdb
}

func (r *repositoryImpl) GetPriceRDB() *redis.Client {
	return r.priceRdb
}

func (r *repositoryImpl) GetDB() *gorm.DB {
	return r.db
}

func (r *repositoryImpl) GetMQ() MQClient {
	return r.mq
}

func (r *repositoryImpl) GetES() *elasticsearch.Client {
	return r.es
}

func (r *repositoryImpl) GetSelectDB() *selectdbclient.Client {
	return r.selectDB
}

func (r *repositoryImpl) GetEthClient() *ethclient.Client {
	return r.ethClient
}

func (r *repositoryImpl) Close() error {
	if r.db != nil {
		database.Close(r.db)
	}
	if r.mainRdb != nil {
		r.mainRdb.Close()
	}
	if r.priceRdb != nil {
		r.priceRdb.Close()
	}
	if r.mq != nil {
		r.mq.Close()
	}
	if r.ethClient != nil {
		r.ethClient.Close()
	}
	return nil
}
