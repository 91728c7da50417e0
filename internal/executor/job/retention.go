package job

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type OrderArchive interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SnapshotArchive interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob 删除超过保留期的归档订单和价格快照
type RetentionJob struct {
	orders    OrderArchive
	snapshots SnapshotArchive
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewRetentionJob(orders OrderArchive, snapshots SnapshotArchive, retention time.Duration, logger *zap.Logger) *RetentionJob {
	return &RetentionJob{
		orders:    orders,
		snapshots: snapshots,
		retention: retention,
		logger:    logger.Named("retention"),
		now:       time.Now,
	}
}

func (j *RetentionJob) Run(ctx context.Context) error {
	if j.retention <= 0 {
		return nil
	}
	cutoff := j.now().Add(-j.retention)

	orders, err := j.orders.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	snapshots, err := j.snapshots.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	j.logger.Info("cleaned archived data",
		zap.Time("cutoff", cutoff),
		zap.Int64("orders", orders),
		zap.Int64("price_snapshots", snapshots))
	return nil
}
