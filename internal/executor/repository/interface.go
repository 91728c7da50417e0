package repository

import (
	"cryptojackal/pkg/elasticsearch"
	selectdbclient "cryptojackal/pkg/selectdb_client"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"
)

type RedisClient = *redis.Client
type DBClient = *gorm.DB
type MQClient = *kafka.Writer

// Repository 外部连接的统一持有者, 可选组件未配置时返回 nil
type Repository interface {
	GetMainRDB() RedisClient
	GetPriceRDB() RedisClient
	GetDB() DBClient
	GetMQ() MQClient
	GetES() *elasticsearch.Client
	GetSelectDB() *selectdbclient.Client
	GetEthClient() *ethclient.Client
	Close() error
}
