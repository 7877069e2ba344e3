package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/observation-record-api/internal/models"
)

func wfsElement(name, value string) string {
	return fmt.Sprintf(`<wfs:member><BsWfs:BsWfsElement gml:id="BsWfsElement.1">`+
		`<BsWfs:Location><gml:Point><gml:pos>60.2 24.9</gml:pos></gml:Point></BsWfs:Location>`+
		`<BsWfs:Time>2025-02-01T18:00:00Z</BsWfs:Time>`+
		`<BsWfs:ParameterName>%s</BsWfs:ParameterName>`+
		`<BsWfs:ParameterValue>%s</BsWfs:ParameterValue>`+
		`</BsWfs:BsWfsElement></wfs:member>`, name, value)
}

func wfsResponse(elements ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" ` +
		`xmlns:BsWfs="http://xml.fmi.fi/schema/wfs/2.0" xmlns:gml="http://www.opengis.net/gml/3.2">` +
		strings.Join(elements, "") +
		`</wfs:FeatureCollection>`
}

func testWeatherService(url string) *WeatherService {
	return NewWeatherService(url, 2*time.Second, testMetrics(), quietLogger())
}

func TestWeatherService_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "60.2172,24.3934", r.URL.Query().Get("latlon"))
		assert.Equal(t, "Temperature,Pressure,Humidity,TotalCloudCover,RadiationGlobalAccumulation",
			r.URL.Query().Get("parameters"))

		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, wfsResponse(
			wfsElement("Temperature", "-3.5"),
			wfsElement("Pressure", "1012.4"),
			wfsElement("Humidity", "NaN"),
			wfsElement("TotalCloudCover", "6.0"),
			wfsElement("Temperature", "-2.0"),
		))
	}))
	defer srv.Close()

	svc := testWeatherService(srv.URL)
	weather, err := svc.Lookup(context.Background(), "60.2172", "24.3934")
	require.NoError(t, err)
	require.NotNil(t, weather)

	assert.Equal(t, "271.15", weather.Temperature)
	require.NotNil(t, weather.Pressure)
	assert.Equal(t, "1012.40", *weather.Pressure)
	assert.Nil(t, weather.Humidity)
	require.NotNil(t, weather.CloudCover)
	assert.Equal(t, "6.00", *weather.CloudCover)
	assert.Nil(t, weather.LightVolume)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.WeatherLookups.WithLabelValues("success")))
}

func TestWeatherService_NoTemperatureMeansNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, wfsResponse(
			wfsElement("Temperature", "NaN"),
			wfsElement("Pressure", "1000.0"),
		))
	}))
	defer srv.Close()

	svc := testWeatherService(srv.URL)
	weather, err := svc.Lookup(context.Background(), "1", "2")
	require.NoError(t, err)
	assert.Nil(t, weather)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.WeatherLookups.WithLabelValues("empty")))
}

func TestWeatherService_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"malformed xml", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "<wfs:FeatureCollection><wfs:member>")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			svc := testWeatherService(srv.URL)
			weather, err := svc.Lookup(context.Background(), "1", "2")
			assert.Error(t, err)
			assert.Nil(t, weather)
			assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.WeatherLookups.WithLabelValues("error")))
		})
	}
}

// fakeRedis implements redisKV over a map.
type fakeRedis struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

type countingWeather struct {
	calls   int
	weather *models.Weather
	err     error
}

func (c *countingWeather) Lookup(context.Context, string, string) (*models.Weather, error) {
	c.calls++
	return c.weather, c.err
}

func TestCachedWeatherProvider_HitAfterMiss(t *testing.T) {
	pressure := "1001.00"
	inner := &countingWeather{weather: &models.Weather{Temperature: "280.15", Pressure: &pressure}}
	rdb := newFakeRedis()
	cached := NewCachedWeatherProvider(inner, rdb, 10*time.Minute, testMetrics(), quietLogger())
	ctx := context.Background()

	first, err := cached.Lookup(ctx, "60.1", "24.9")
	require.NoError(t, err)
	second, err := cached.Lookup(ctx, "60.1", "24.9")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first.Temperature, second.Temperature)
	require.NotNil(t, second.Pressure)
	assert.Equal(t, pressure, *second.Pressure)
	assert.Equal(t, 10*time.Minute, rdb.ttls["weather:60.1,24.9"])

	var stored cachedWeather
	require.NoError(t, json.Unmarshal([]byte(rdb.data["weather:60.1,24.9"]), &stored))
	assert.Equal(t, "280.15", stored.Temperature)

	assert.Equal(t, 1.0, testutil.ToFloat64(cached.metrics.WeatherCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cached.metrics.WeatherCache.WithLabelValues("miss")))
}

func TestCachedWeatherProvider_DoesNotCacheEmptyOrErrors(t *testing.T) {
	rdb := newFakeRedis()
	ctx := context.Background()

	empty := &countingWeather{}
	cached := NewCachedWeatherProvider(empty, rdb, time.Minute, testMetrics(), quietLogger())
	w, err := cached.Lookup(ctx, "1", "2")
	require.NoError(t, err)
	assert.Nil(t, w)

	failing := &countingWeather{err: errors.New("timeout")}
	cached = NewCachedWeatherProvider(failing, rdb, time.Minute, testMetrics(), quietLogger())
	_, err = cached.Lookup(ctx, "1", "2")
	assert.Error(t, err)

	assert.Empty(t, rdb.data)
}

func TestCachedWeatherProvider_RedisDownFallsThrough(t *testing.T) {
	rdb := newFakeRedis()
	rdb.getErr = errors.New("connection refused")
	inner := &countingWeather{weather: &models.Weather{Temperature: "250.00"}}
	cached := NewCachedWeatherProvider(inner, rdb, time.Minute, testMetrics(), quietLogger())

	w, err := cached.Lookup(context.Background(), "1", "2")
	require.NoError(t, err)
	assert.Equal(t, "250.00", w.Temperature)
	assert.Equal(t, 1, inner.calls)
}
