package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridian-retail/meridian-retail/internal/jobs"
	"github.com/meridian-retail/meridian-retail/internal/platform/cache"
)

// TaskStockSnapshot warms the on-hand cache from the stock ledgers.
const TaskStockSnapshot = "stock:snapshot"

// StockSnapshotPayload carries scheduling metadata.
type StockSnapshotPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockSnapshotTask constructs an Asynq task for the snapshot run.
func NewStockSnapshotTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockSnapshotPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockSnapshot, body, asynq.Queue(QueueDefault)), nil
}

// OnHandSnapshot is the cached per-item total.
type OnHandSnapshot struct {
	ItemID     int64     `json:"item_id"`
	OnHand     int64     `json:"on_hand"`
	CapturedAt time.Time `json:"captured_at"`
}

// NewStockSnapshotHandler returns the worker handler. Each run sums every
// item's quantity across the three ledgers and writes it to Redis.
func NewStockSnapshotHandler(pool *pgxpool.Pool, store *cache.Store, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload StockSnapshotPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("stock_snapshot")
		return tracker.End(snapshotRun(ctx, pool, store, logger, payload))
	}
}

func snapshotRun(ctx context.Context, pool *pgxpool.Pool, store *cache.Store, logger *slog.Logger, payload StockSnapshotPayload) error {
	rows, err := pool.Query(ctx, `SELECT item_id, COALESCE(SUM(quantity),0)
FROM stock_levels GROUP BY item_id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	captured := time.Now().UTC()
	var count int
	for rows.Next() {
		var snapshot OnHandSnapshot
		if err := rows.Scan(&snapshot.ItemID, &snapshot.OnHand); err != nil {
			return err
		}
		snapshot.CapturedAt = captured
		key := fmt.Sprintf("stock:onhand:%d", snapshot.ItemID)
		if err := store.SetJSON(ctx, key, snapshot); err != nil {
			return err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	logger.Info("stock snapshot complete",
		slog.Int("items", count),
		slog.Time("scheduled_for", payload.ScheduledFor))
	return nil
}
