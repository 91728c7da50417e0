package dao

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type priceDAO struct {
	db *gorm.DB
}

func NewPriceDAO(db *gorm.DB) PriceDAO {
	return &priceDAO{db: db}
}

func (d *priceDAO) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if d.db == nil {
		return 0, nil
	}
	var total int64
	for {
		res := d.db.WithContext(ctx).Exec(
			"DELETE FROM executor.t_price_snapshot WHERE id IN (SELECT id FROM executor.t_price_snapshot WHERE timestamp < ? LIMIT ?)",
			cutoff.UnixMilli(), DELETE_BATCH_MAX,
		)
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
		if res.RowsAffected < DELETE_BATCH_MAX {
			return total, nil
		}
	}
}
