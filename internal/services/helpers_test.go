package services

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/observation-record-api/internal/database"
	"github.com/yukikurage/observation-record-api/internal/observability"
	"github.com/yukikurage/observation-record-api/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm/logger"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testMetrics() *observability.Metrics {
	m, _ := observability.NewMetricsForTesting()
	return m
}

func openTestEngine(t *testing.T) *database.Engine {
	t.Helper()
	engine, err := database.Open(database.Options{
		Driver:         "sqlite",
		Path:           filepath.Join(t.TempDir(), "records.db"),
		MaxOpenConns:   4,
		MinIdleConns:   1,
		AcquireTimeout: 5 * time.Second,
		LogLevel:       logger.Silent,
		Logger:         quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

// testAuthService hashes with the minimum cost to keep tests fast.
func testAuthService(t *testing.T, engine *database.Engine) *AuthService {
	t.Helper()
	return NewAuthServiceWithCost(repository.NewUserRepository(engine), testMetrics(), bcrypt.MinCost)
}
