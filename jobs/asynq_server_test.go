package jobs

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestHealthWithoutInspector(t *testing.T) {
	router := newTestRouter(NewHandler(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil))))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}

func TestTriggerWithoutQueueClient(t *testing.T) {
	router := newTestRouter(NewHandler(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil))))

	for _, path := range []string{"/snapshot", "/reconcile"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestTriggerTaskConstruction(t *testing.T) {
	at := time.Date(2026, 8, 28, 1, 0, 0, 0, time.UTC)

	snapshot, err := NewStockSnapshotTask(at)
	require.NoError(t, err)
	require.Equal(t, TaskStockSnapshot, snapshot.Type())
	var snapshotPayload StockSnapshotPayload
	require.NoError(t, json.Unmarshal(snapshot.Payload(), &snapshotPayload))
	require.Equal(t, at, snapshotPayload.ScheduledFor)

	reconcile, err := NewBoxReconcileTask(at)
	require.NoError(t, err)
	require.Equal(t, TaskBoxReconcile, reconcile.Type())
	var reconcilePayload BoxReconcilePayload
	require.NoError(t, json.Unmarshal(reconcile.Payload(), &reconcilePayload))
	require.Equal(t, at, reconcilePayload.ScheduledFor)
}
