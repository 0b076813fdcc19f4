package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/order-import-sync/internal/aggregator"
	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

type fakeStorage struct {
	runs    []*domain.RunOutcome
	listErr error

	lastTarget string
	lastRange  domain.TimeRange
	lastLimit  int
}

func (f *fakeStorage) SaveRun(ctx context.Context, o *domain.RunOutcome) error {
	f.runs = append(f.runs, o)
	return nil
}

func (f *fakeStorage) GetRun(ctx context.Context, id string) (*domain.RunOutcome, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, apperrors.NewNotFoundError("run " + id)
}

func (f *fakeStorage) ListRuns(ctx context.Context, target string, timeRange domain.TimeRange, limit int) ([]*domain.RunOutcome, error) {
	f.lastTarget, f.lastRange, f.lastLimit = target, timeRange, limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*domain.RunOutcome
	for _, r := range f.runs {
		if target == "" || r.Target == target {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStorage) LastSubmittedArtifact(ctx context.Context, target string) (*domain.ArtifactInfo, error) {
	return nil, nil
}

func (f *fakeStorage) Migrate(ctx context.Context) error { return nil }

func (f *fakeStorage) Close() error { return nil }

var base = time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC)

func storedRun(id, target string) *domain.RunOutcome {
	o := domain.NewRunOutcome(id, target, base)
	o.Submission = &domain.SubmissionResult{StatusCode: 200, RawBody: "{}"}
	o.EligibleIDs = []domain.RecordID{domain.NumericRecordID(7)}
	o.Confirmation = domain.ConfirmationReport{State: domain.ConfirmationConfirmed, Requested: 1, Confirmed: 1}
	o.Finish(base.Add(time.Minute))
	return o
}

func setupRouter(store *fakeStorage) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return SetupRoutes(NewHandler(store, aggregator.NewAggregator(store)), logger)
}

func get(t *testing.T, router *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealthCheck(t *testing.T) {
	w, body := get(t, setupRouter(&fakeStorage{}), "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestListRuns(t *testing.T) {
	store := &fakeStorage{runs: []*domain.RunOutcome{storedRun("a", "shop-42"), storedRun("b", "shop-7")}}
	router := setupRouter(store)

	w, body := get(t, router, "/api/v1/runs?target=shop-42&start=2026-10-01&end=2026-10-14&limit=5")

	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	first := data[0].(map[string]interface{})
	assert.Equal(t, "a", first["id"])
	assert.Equal(t, "full_success", first["verdict"])
	assert.Equal(t, float64(1), first["confirmed"])

	assert.Equal(t, "shop-42", store.lastTarget)
	assert.Equal(t, 5, store.lastLimit)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), store.lastRange.Start)
	assert.True(t, store.lastRange.Contains(time.Date(2026, 10, 14, 23, 59, 0, 0, time.UTC)))
	assert.False(t, store.lastRange.Contains(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)))
}

func TestListRuns_DefaultLimitAndEmpty(t *testing.T) {
	store := &fakeStorage{}
	w, body := get(t, setupRouter(store), "/api/v1/runs")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, body["data"])
	assert.Equal(t, defaultRunLimit, store.lastLimit)
	assert.True(t, store.lastRange.Start.IsZero())
}

func TestListRuns_Errors(t *testing.T) {
	tests := []struct {
		name       string
		store      *fakeStorage
		path       string
		wantStatus int
		wantCode   string
	}{
		{name: "bad start", store: &fakeStorage{}, path: "/api/v1/runs?start=yesterday", wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{name: "inverted range", store: &fakeStorage{}, path: "/api/v1/runs?start=2026-10-14&end=2026-10-01", wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{name: "storage failure", store: &fakeStorage{listErr: errors.New("db closed")}, path: "/api/v1/runs", wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := get(t, setupRouter(tt.store), tt.path)

			assert.Equal(t, tt.wantStatus, w.Code)
			errBody := body["error"].(map[string]interface{})
			assert.Equal(t, tt.wantCode, errBody["code"])
		})
	}
}

func TestGetRun(t *testing.T) {
	store := &fakeStorage{runs: []*domain.RunOutcome{storedRun("a", "shop-42")}}
	router := setupRouter(store)

	w, body := get(t, router, "/api/v1/runs/a")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, []interface{}{float64(7)}, data["eligible_ids"])

	w, body = get(t, router, "/api/v1/runs/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]interface{})["code"])
}

func TestTargetStats(t *testing.T) {
	store := &fakeStorage{runs: []*domain.RunOutcome{storedRun("a", "shop-42"), storedRun("b", "shop-42"), storedRun("c", "shop-7")}}
	router := setupRouter(store)

	w, body := get(t, router, "/api/v1/targets/shop-42/stats")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "shop-42", data["target"])
	assert.Equal(t, float64(2), data["runs"])

	w, body = get(t, router, "/api/v1/targets/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"], 2)
}

func TestCORSPreflight(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	setupRouter(&fakeStorage{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
