package handlers

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/observation-record-api/internal/constants"
	"github.com/yukikurage/observation-record-api/internal/database"
	"github.com/yukikurage/observation-record-api/internal/middleware"
	"github.com/yukikurage/observation-record-api/internal/services"
)

// RouterDeps holds everything the HTTP routes are built from.
type RouterDeps struct {
	AuthService   *services.AuthService
	RecordService *services.RecordService
	Engine        *database.Engine
	SessionStore  sessions.Store
	Gatherer      prometheus.Gatherer
	Log           logrus.FieldLogger
}

// NewRouter registers all routes on a new gin engine.
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(deps.Log))
	r.Use(sessions.Sessions(constants.SessionCookieName, deps.SessionStore))

	authHandler := NewAuthHandler(deps.AuthService, deps.Log)
	recordHandler := NewRecordHandler(deps.RecordService, deps.Log)
	healthHandler := NewHealthHandler(deps.Engine, deps.Log)
	requireAuth := middleware.RequireAuth(deps.AuthService, deps.Log)

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", Metrics(deps.Gatherer))

	r.POST("/registration", authHandler.Register)

	auth := r.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/me", requireAuth, authHandler.GetCurrentUser)
	}

	records := r.Group("/datarecord")
	records.Use(requireAuth)
	{
		records.GET("", recordHandler.ListRecords)
		records.POST("", recordHandler.CreateRecord)
		records.PUT("", recordHandler.UpdateRecord)
	}

	r.GET("/search", requireAuth, recordHandler.Search)

	return r
}
