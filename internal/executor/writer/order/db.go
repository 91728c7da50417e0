package order

import (
	"context"
	"time"

	"cryptojackal/internal/executor/model"
	"cryptojackal/internal/executor/writer"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	RETRY_COUNT = 3
)

// DbExecutedOrderWriter 只接收终态事件
type DbExecutedOrderWriter struct {
	db *gorm.DB
	tl *zap.Logger
}

func NewDbExecutedOrderWriter(db *gorm.DB, tl *zap.Logger) writer.BatchWriter[model.OrderEvent] {
	return &DbExecutedOrderWriter{db: db, tl: tl}
}

func (w *DbExecutedOrderWriter) BWrite(ctx context.Context, events []model.OrderEvent) error {
	rows := executedOrders(events)
	if len(rows) == 0 {
		return nil
	}

	newCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	// 重试机制
	var err error
	for attempt := 0; attempt < RETRY_COUNT; attempt++ {
		err = w.db.WithContext(newCtx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"state":       gorm.Expr("EXCLUDED.state"),
				"attempts":    gorm.Expr("EXCLUDED.attempts"),
				"reason":      gorm.Expr("EXCLUDED.reason"),
				"tx_hash":     gorm.Expr("EXCLUDED.tx_hash"),
				"gas_used":    gorm.Expr("EXCLUDED.gas_used"),
				"finished_at": gorm.Expr("EXCLUDED.finished_at"),
			}),
		}).CreateInBatches(rows, 500).Error

		if err == nil {
			break
		}
	}
	if err != nil {
		w.tl.Warn("❌ DB write failed, exceeded the maximum number of retries", zap.Error(err), zap.Int("orders", len(rows)))
		return err
	}
	return nil
}

func (w *DbExecutedOrderWriter) Close() error {
	return nil
}

// executedOrders 过滤非终态事件, 同一批内同一订单保留最后一条
func executedOrders(events []model.OrderEvent) []model.ExecutedOrder {
	index := make(map[string]int, len(events))
	rows := make([]model.ExecutedOrder, 0, len(events))
	for _, ev := range events {
		if !ev.Terminal() {
			continue
		}
		row := model.NewExecutedOrder(ev)
		if i, ok := index[ev.OrderID]; ok {
			rows[i] = row
			continue
		}
		index[ev.OrderID] = len(rows)
		rows = append(rows, row)
	}
	return rows
}
