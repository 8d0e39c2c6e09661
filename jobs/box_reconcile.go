package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridian-retail/meridian-retail/internal/jobs"
)

// TaskBoxReconcile re-derives box statuses from their current contents.
const TaskBoxReconcile = "boxes:reconcile"

// BoxReconcilePayload carries scheduling metadata.
type BoxReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewBoxReconcileTask constructs an Asynq task for the reconcile run.
func NewBoxReconcileTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(BoxReconcilePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBoxReconcile, body, asynq.Queue(QueueDefault)), nil
}

// NewBoxReconcileHandler returns the worker handler. Manual capacity edits
// outside the placement flow can leave a stale ACTIVE or FULL status; the
// reconcile pass recomputes it from the summed contents. Inactive boxes
// are left alone.
func NewBoxReconcileHandler(pool *pgxpool.Pool, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload BoxReconcilePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("box_reconcile")
		return tracker.End(reconcileRun(ctx, pool, logger, payload))
	}
}

func reconcileRun(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger, payload BoxReconcilePayload) error {
	tag, err := pool.Exec(ctx, `UPDATE boxes SET status = derived.status, updated_at = now()
FROM (
	SELECT b.id,
		CASE WHEN COALESCE(SUM(bi.quantity),0) >= b.capacity THEN 'FULL' ELSE 'ACTIVE' END AS status
	FROM boxes b
	LEFT JOIN box_items bi ON bi.box_id = b.id
	WHERE b.status <> 'INACTIVE'
	GROUP BY b.id, b.capacity
) derived
WHERE boxes.id = derived.id AND boxes.status <> derived.status`)
	if err != nil {
		return err
	}
	logger.Info("box reconcile complete",
		slog.Int64("updated", tag.RowsAffected()),
		slog.Time("scheduled_for", payload.ScheduledFor))
	return nil
}
