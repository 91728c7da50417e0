package dao

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// DAOManager 管理所有DAO实例
type DAOManager struct {
	OrderDAO OrderDAO
	PriceDAO PriceDAO
}

// NewDAOManager db 为 nil 时只查询 redis
func NewDAOManager(db *gorm.DB, rds *redis.Client) *DAOManager {
	return &DAOManager{
		OrderDAO: NewOrderDAO(db, rds),
		PriceDAO: NewPriceDAO(db),
	}
}
