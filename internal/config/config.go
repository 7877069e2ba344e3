package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	GinMode  string

	DBDriver          string
	DBPath            string
	DBDSN             string
	DBMaxOpenConns    int
	DBMinIdleConns    int
	DBConnMaxIdleTime time.Duration
	DBConnMaxLifetime time.Duration
	DBAcquireTimeout  time.Duration
	DBLogLevel        string

	LogLevel  string
	LogFormat string

	SessionSecret string
	RedisHost     string
	RedisPort     string

	WeatherAPIURL   string
	WeatherTimeout  time.Duration
	WeatherCacheTTL time.Duration

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	SummaryTimeout  time.Duration
	SummaryMaxInput int
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; explicit variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8001"),
		GinMode:       getEnv("GIN_MODE", "debug"),
		DBDriver:      getEnv("DB_DRIVER", "sqlite"),
		DBPath:        getEnv("DB_PATH", "messages.db"),
		DBDSN:         getEnv("DB_DSN", ""),
		DBLogLevel:    getEnv("DB_LOG_LEVEL", "warn"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		SessionSecret: getEnv("SESSION_SECRET", "default-secret-key-change-me"),
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		WeatherAPIURL: getEnv("WEATHER_API_URL", "http://localhost:4001/wfs"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
	}

	var err error
	if cfg.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 10); err != nil {
		return nil, err
	}
	if cfg.DBMinIdleConns, err = getInt("DB_MIN_IDLE_CONNS", 5); err != nil {
		return nil, err
	}
	if cfg.SummaryMaxInput, err = getInt("SUMMARY_MAX_INPUT", 400); err != nil {
		return nil, err
	}
	if cfg.DBConnMaxIdleTime, err = getDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DBConnMaxLifetime, err = getDuration("DB_CONN_MAX_LIFETIME", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DBAcquireTimeout, err = getDuration("DB_ACQUIRE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.WeatherTimeout, err = getDuration("WEATHER_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.WeatherCacheTTL, err = getDuration("WEATHER_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SummaryTimeout, err = getDuration("SUMMARY_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}

	switch cfg.DBDriver {
	case "sqlite":
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case "postgres", "mysql":
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is required for the %s driver", cfg.DBDriver)
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.DBMinIdleConns > cfg.DBMaxOpenConns {
		return nil, fmt.Errorf("DB_MIN_IDLE_CONNS (%d) exceeds DB_MAX_OPEN_CONNS (%d)", cfg.DBMinIdleConns, cfg.DBMaxOpenConns)
	}

	return cfg, nil
}

// RedisAddr returns host:port, or "" when Redis is not configured.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return c.RedisHost + ":" + c.RedisPort
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, value)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, value)
	}
	return d, nil
}
