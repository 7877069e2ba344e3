package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/observation-record-api/internal/database"
	"github.com/yukikurage/observation-record-api/internal/middleware"
)

type HealthHandler struct {
	engine *database.Engine
	log    logrus.FieldLogger
}

func NewHealthHandler(engine *database.Engine, log logrus.FieldLogger) *HealthHandler {
	return &HealthHandler{engine: engine, log: log}
}

// Health pings the storage engine and reports pool statistics. Failure detail
// is logged, never returned.
func (h *HealthHandler) Health(c *gin.Context) {
	stats, err := h.check(c)
	if err != nil {
		middleware.RequestLogger(c, h.log).WithError(err).Error("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"message":  "Observation record API is running",
		"database": stats,
	})
}

func (h *HealthHandler) check(c *gin.Context) (map[string]interface{}, error) {
	if err := h.engine.HealthCheck(c.Request.Context()); err != nil {
		return nil, err
	}
	return h.engine.Stats()
}

// Metrics serves the given Prometheus gatherer; nil means the default registry.
func Metrics(gatherer prometheus.Gatherer) gin.HandlerFunc {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
