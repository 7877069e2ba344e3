package observability

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "warn", "json")

	log.Info("hidden")
	log.WithField("record_id", 7).Warn("shown")

	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"record_id":7`)
}

func TestNewLogger_UnknownLevelFallsBack(t *testing.T) {
	log := newLogger(&bytes.Buffer{}, "chatty", "text")
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	_, ok := log.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}

func TestNewMetricsForTesting_Independent(t *testing.T) {
	m1, reg1 := NewMetricsForTesting()
	m2, _ := NewMetricsForTesting()

	m1.RecordsCreated.Inc()
	m1.WeatherLookups.WithLabelValues("success").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m1.RecordsCreated))
	assert.Equal(t, 0.0, testutil.ToFloat64(m2.RecordsCreated))

	families, err := reg1.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
