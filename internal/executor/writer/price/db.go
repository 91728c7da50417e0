package price

import (
	"context"
	"time"

	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/writer"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	RETRY_COUNT = 3
)

type DbPriceSnapshotWriter struct {
	db *gorm.DB
	tl *zap.Logger
}

func NewDbPriceSnapshotWriter(db *gorm.DB, tl *zap.Logger) writer.BatchWriter[model.AggregatedPrice] {
	return &DbPriceSnapshotWriter{db: db, tl: tl}
}

func (w *DbPriceSnapshotWriter) BWrite(ctx context.Context, prices []model.AggregatedPrice) error {
	if len(prices) == 0 {
		return nil
	}

	rows := make([]model.PriceSnapshot, 0, len(prices))
	for _, p := range prices {
		rows = append(rows, model.NewPriceSnapshot(p))
	}

	newCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var err error
	for attempt := 0; attempt < RETRY_COUNT; attempt++ {
		err = w.db.WithContext(newCtx).CreateInBatches(rows, 500).Error
		if err == nil {
			break
		}
	}
	if err != nil {
		w.tl.Warn("❌ DB write failed, exceeded the maximum number of retries", zap.Error(err), zap.Int("snapshots", len(rows)))
		return err
	}
	return nil
}

func (w *DbPriceSnapshotWriter) Close() error {
	return nil
}
