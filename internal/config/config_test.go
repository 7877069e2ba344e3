package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DB_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "messages.db", cfg.DBPath)
	assert.Equal(t, 10, cfg.DBMaxOpenConns)
	assert.Equal(t, 5, cfg.DBMinIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.DBConnMaxIdleTime)
	assert.Equal(t, 10*time.Minute, cfg.DBConnMaxLifetime)
	assert.Equal(t, 400, cfg.SummaryMaxInput)
	assert.Empty(t, cfg.RedisAddr())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "4")
	t.Setenv("DB_MIN_IDLE_CONNS", "2")
	t.Setenv("DB_ACQUIRE_TIMEOUT", "750ms")
	t.Setenv("REDIS_HOST", "cache")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.DBMaxOpenConns)
	assert.Equal(t, 2, cfg.DBMinIdleConns)
	assert.Equal(t, 750*time.Millisecond, cfg.DBAcquireTimeout)
	assert.Equal(t, "cache:6379", cfg.RedisAddr())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"WEATHER_TIMEOUT": "soon"}},
		{"negative int", map[string]string{"DB_MAX_OPEN_CONNS": "-1"}},
		{"idle above max", map[string]string{"DB_MAX_OPEN_CONNS": "2", "DB_MIN_IDLE_CONNS": "3"}},
		{"unknown driver", map[string]string{"DB_DRIVER": "oracle"}},
		{"postgres without dsn", map[string]string{"DB_DRIVER": "postgres"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
