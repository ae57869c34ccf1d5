package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/esomin/gpu-market-etl/internal/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(s *scheduler.Scheduler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(nil, s)
	return NewRouter(h)
}

func TestHealth_ReportsHealthyRegardlessOfScheduler(t *testing.T) {
	router := setupTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestSchedulerStatus_ReportsUnavailableWhenNoScheduler(t *testing.T) {
	router := setupTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scheduler/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSchedulerStatus_ReportsJobState(t *testing.T) {
	s := scheduler.New(scheduler.Config{}, func(ctx context.Context) error { return nil }, func(ctx context.Context) error { return nil })
	router := setupTestRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scheduler/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "price-crawl")
}

func TestTriggerJob_RunsRegisteredJobAndReturnsOK(t *testing.T) {
	var called bool
	s := scheduler.New(scheduler.Config{}, func(ctx context.Context) error {
		called = true
		return nil
	}, func(ctx context.Context) error { return nil })
	router := setupTestRouter(s)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/trigger/price-crawl", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestTriggerJob_UnknownJobReturnsBadRequest(t *testing.T) {
	s := scheduler.New(scheduler.Config{}, func(ctx context.Context) error { return nil }, func(ctx context.Context) error { return nil })
	router := setupTestRouter(s)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scheduler/trigger/unknown-job", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecoveryMiddleware_TurnsPanicIntoInternalServerError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(recoveryMiddleware())
	router.GET("/boom", func(c *gin.Context) {
		panic("unexpected")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
