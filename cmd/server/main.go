package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	redisStore "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/observation-record-api/internal/config"
	"github.com/yukikurage/observation-record-api/internal/database"
	"github.com/yukikurage/observation-record-api/internal/handlers"
	"github.com/yukikurage/observation-record-api/internal/observability"
	"github.com/yukikurage/observation-record-api/internal/policy"
	"github.com/yukikurage/observation-record-api/internal/repository"
	"github.com/yukikurage/observation-record-api/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	log := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	// Open the storage engine; migrations run on open
	engine, err := database.Open(database.OptionsFromConfig(cfg, log))
	if err != nil {
		log.WithError(err).Fatal("Failed to open storage engine")
	}
	defer engine.Close()

	metrics := observability.NewMetrics()

	users := repository.NewUserRepository(engine)
	records := repository.NewRecordRepository(engine)

	var redisClient *redis.Client
	if addr := cfg.RedisAddr(); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
		defer redisClient.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.WithError(err).WithField("addr", addr).Fatal("Failed to connect to Redis")
		}
	}

	// Weather lookups are cached in Redis when it is available
	var weather services.WeatherProvider = services.NewWeatherService(cfg.WeatherAPIURL, cfg.WeatherTimeout, metrics, log)
	if redisClient != nil {
		weather = services.NewCachedWeatherProvider(weather, redisClient, cfg.WeatherCacheTTL, metrics, log)
	}

	summarizer := services.NewAIService(services.AIServiceConfig{
		APIKey:   cfg.OpenAIAPIKey,
		BaseURL:  cfg.OpenAIBaseURL,
		Timeout:  cfg.SummaryTimeout,
		MaxInput: cfg.SummaryMaxInput,
	}, metrics, log)

	recordService := services.NewRecordService(services.RecordServiceDeps{
		Records:    records,
		Gate:       policy.NewOwnershipGate(users, records),
		Weather:    weather,
		Summarizer: summarizer,
		Clock:      clockwork.NewRealClock(),
		Metrics:    metrics,
		Log:        log,
	})

	store, err := newSessionStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to create session store")
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		AuthService:   services.NewAuthService(users, metrics),
		RecordService: recordService,
		Engine:        engine,
		SessionStore:  store,
		Log:           log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}

// newSessionStore keeps sessions in Redis when configured and in signed
// cookies otherwise.
func newSessionStore(cfg *config.Config) (sessions.Store, error) {
	var store sessions.Store
	if addr := cfg.RedisAddr(); addr != "" {
		rs, err := redisStore.NewStore(
			10,    // Redis pool size
			"tcp", // network type
			addr,
			"", // username (empty for default user)
			"", // password (empty = no password)
			[]byte(cfg.SessionSecret),
		)
		if err != nil {
			return nil, err
		}
		store = rs
	} else {
		store = cookie.NewStore([]byte(cfg.SessionSecret))
	}

	isProduction := cfg.GinMode == gin.ReleaseMode
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
	return store, nil
}
