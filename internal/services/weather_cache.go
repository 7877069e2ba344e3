package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/observation-record-api/internal/models"
	"github.com/yukikurage/observation-record-api/internal/observability"
)

// redisKV is the subset of redis.Cmdable the cache needs.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedWeatherProvider wraps a WeatherProvider with a Redis cache keyed by
// coordinate. Only successful lookups are cached; a Redis failure falls through
// to the wrapped provider.
type CachedWeatherProvider struct {
	inner   WeatherProvider
	client  redisKV
	ttl     time.Duration
	metrics *observability.Metrics
	log     logrus.FieldLogger
}

// NewCachedWeatherProvider creates a cache decorator around a weather provider.
func NewCachedWeatherProvider(inner WeatherProvider, client redisKV, ttl time.Duration, metrics *observability.Metrics, log logrus.FieldLogger) *CachedWeatherProvider {
	return &CachedWeatherProvider{
		inner:   inner,
		client:  client,
		ttl:     ttl,
		metrics: metrics,
		log:     log,
	}
}

// cachedWeather is the cached form; the row id is not part of it.
type cachedWeather struct {
	Temperature string  `json:"temperature"`
	Pressure    *string `json:"pressure,omitempty"`
	Humidity    *string `json:"humidity,omitempty"`
	CloudCover  *string `json:"cloud_cover,omitempty"`
	LightVolume *string `json:"light_volume,omitempty"`
}

func weatherKey(latitude, longitude string) string {
	return fmt.Sprintf("weather:%s,%s", latitude, longitude)
}

// Lookup returns a cached snapshot when present, otherwise asks the wrapped
// provider and stores a non-empty answer.
func (c *CachedWeatherProvider) Lookup(ctx context.Context, latitude, longitude string) (*models.Weather, error) {
	key := weatherKey(latitude, longitude)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cw cachedWeather
		if err := json.Unmarshal(data, &cw); err == nil {
			c.metrics.WeatherCache.WithLabelValues("hit").Inc()
			return cw.toModel(), nil
		}
		c.log.WithField("key", key).Warn("Discarding unreadable cached weather")
	case !errors.Is(err, redis.Nil):
		c.log.WithError(err).Debug("Weather cache unavailable")
	}
	c.metrics.WeatherCache.WithLabelValues("miss").Inc()

	weather, err := c.inner.Lookup(ctx, latitude, longitude)
	if err != nil || weather == nil {
		return weather, err
	}

	payload, err := json.Marshal(fromModel(weather))
	if err == nil {
		err = c.client.Set(ctx, key, payload, c.ttl).Err()
	}
	if err != nil {
		c.log.WithError(err).Debug("Failed to cache weather")
	}
	return weather, nil
}

func fromModel(w *models.Weather) cachedWeather {
	return cachedWeather{
		Temperature: w.Temperature,
		Pressure:    w.Pressure,
		Humidity:    w.Humidity,
		CloudCover:  w.CloudCover,
		LightVolume: w.LightVolume,
	}
}

func (cw cachedWeather) toModel() *models.Weather {
	return &models.Weather{
		Temperature: cw.Temperature,
		Pressure:    cw.Pressure,
		Humidity:    cw.Humidity,
		CloudCover:  cw.CloudCover,
		LightVolume: cw.LightVolume,
	}
}
