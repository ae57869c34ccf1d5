// Package api exposes the introspection surface named in SPEC_FULL.md
// §11: health, scheduler status/history, and manual job triggers. The
// handler shape (gin.H{"success": ..., "data": ...} envelopes, request
// logging via a per-request child logger) is grounded on
// internal/app/controller/gold_price_controller.go and
// internal/middleware/logging_middleware.go, generalized from gold
// price CRUD to pipeline/scheduler introspection.
package api

import (
	"net/http"
	"time"

	apperrors "github.com/esomin/gpu-market-etl/internal/errors"
	"github.com/esomin/gpu-market-etl/internal/pipeline"
	"github.com/esomin/gpu-market-etl/internal/scheduler"
	"github.com/esomin/gpu-market-etl/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Handlers groups the pipeline and scheduler collaborators the
// introspection endpoints report on.
type Handlers struct {
	pipeline  *pipeline.Pipeline
	scheduler *scheduler.Scheduler
}

// NewHandlers builds a Handlers instance. scheduler may be nil (cmd/etl
// always passes its started scheduler); the /scheduler endpoints report
// unavailable in that case rather than panicking.
func NewHandlers(p *pipeline.Pipeline, s *scheduler.Scheduler) *Handlers {
	return &Handlers{pipeline: p, scheduler: s}
}

// NewRouter builds the gin engine with request logging, recovery, and
// the introspection routes wired in.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(recoveryMiddleware())
	router.Use(loggingMiddleware())

	router.GET("/healthz", h.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/scheduler/status", h.SchedulerStatus)
		v1.GET("/scheduler/history", h.SchedulerHistory)
		v1.POST("/scheduler/trigger/:job", h.TriggerJob)
	}

	return router
}

// Health reports process liveness, independent of store/scheduler
// state, so orchestrators can use it as a plain liveness probe.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"status": "healthy"},
	})
}

// SchedulerStatus reports which jobs are currently in flight.
func (h *Handlers) SchedulerStatus(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "scheduler not running in this process"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.scheduler.Status()})
}

// SchedulerHistory reports the bounded recent-firing history.
func (h *Handlers) SchedulerHistory(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "scheduler not running in this process"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.scheduler.History()})
}

// TriggerJob fires a named job immediately, out of band from its cron
// schedule.
func (h *Handlers) TriggerJob(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "scheduler not running in this process"})
		return
	}

	id := scheduler.JobID(c.Param("job"))
	if err := h.scheduler.Trigger(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "job triggered"})
}

// recoveryMiddleware replaces gin.Recovery with one that tags the
// panic with the internal error code operators grep for, rather than
// gin's bare stack-trace line.
func recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered in request handler", nil, map[string]interface{}{
					"code": apperrors.InternalUnexpected, "panic": r, "path": c.Request.URL.Path,
				})
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": c.Writer.Status(),
			"latency":     time.Since(start).String(),
		}
		if status := c.Writer.Status(); status >= 500 {
			logger.Error("request completed", nil, fields)
		} else if status >= 400 {
			logger.Warn("request completed", fields)
		} else {
			logger.Info("request completed", fields)
		}
	}
}
