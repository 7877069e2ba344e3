package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yukikurage/observation-record-api/internal/models"
	"github.com/yukikurage/observation-record-api/internal/observability"
)

// WeatherProvider looks up a weather snapshot for a coordinate. A nil snapshot
// with a nil error means the service had no usable data.
type WeatherProvider interface {
	Lookup(ctx context.Context, latitude, longitude string) (*models.Weather, error)
}

// Parameters requested from the WFS stored query, in request order.
const (
	paramTemperature = "Temperature"
	paramPressure    = "Pressure"
	paramHumidity    = "Humidity"
	paramCloudCover  = "TotalCloudCover"
	paramRadiation   = "RadiationGlobalAccumulation"
)

var weatherParameters = strings.Join([]string{
	paramTemperature, paramPressure, paramHumidity, paramCloudCover, paramRadiation,
}, ",")

const kelvinOffset = 273.15

// WeatherService fetches observations from an FMI-style WFS endpoint.
type WeatherService struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
	log        logrus.FieldLogger
}

// NewWeatherService creates a new WeatherService
func NewWeatherService(baseURL string, timeout time.Duration, metrics *observability.Metrics, log logrus.FieldLogger) *WeatherService {
	return &WeatherService{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		log:     log,
	}
}

// Lookup requests the five supported parameters for the coordinate. The
// temperature is converted from Celsius to Kelvin; without a temperature there
// is no snapshot.
func (s *WeatherService) Lookup(ctx context.Context, latitude, longitude string) (*models.Weather, error) {
	params := url.Values{
		"latlon":     {latitude + "," + longitude},
		"parameters": {weatherParameters},
	}

	start := time.Now()
	weather, err := s.fetch(ctx, s.baseURL+"?"+params.Encode())
	s.metrics.WeatherDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		s.metrics.WeatherLookups.WithLabelValues("error").Inc()
		return nil, err
	case weather == nil:
		s.metrics.WeatherLookups.WithLabelValues("empty").Inc()
	default:
		s.metrics.WeatherLookups.WithLabelValues("success").Inc()
	}
	return weather, nil
}

func (s *WeatherService) fetch(ctx context.Context, fullURL string) (*models.Weather, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("weather API error: status %d: %s", resp.StatusCode, body)
	}

	var fc featureCollection
	if err := xml.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return fc.toWeather(), nil
}

// WFS simple-feature response types. Local names only, so the wfs and BsWfs
// namespace prefixes do not need to be declared.

type featureCollection struct {
	Members []struct {
		Element bsWfsElement `xml:"BsWfsElement"`
	} `xml:"member"`
}

type bsWfsElement struct {
	Time           string `xml:"Time"`
	ParameterName  string `xml:"ParameterName"`
	ParameterValue string `xml:"ParameterValue"`
}

// toWeather keeps the latest non-NaN value of each parameter. Elements arrive
// in time order.
func (fc featureCollection) toWeather() *models.Weather {
	latest := map[string]float64{}
	for _, m := range fc.Members {
		v, err := strconv.ParseFloat(strings.TrimSpace(m.Element.ParameterValue), 64)
		if err != nil || math.IsNaN(v) {
			continue
		}
		latest[m.Element.ParameterName] = v
	}

	celsius, ok := latest[paramTemperature]
	if !ok {
		return nil
	}

	return &models.Weather{
		Temperature: formatReading(celsius + kelvinOffset),
		Pressure:    reading(latest, paramPressure),
		Humidity:    reading(latest, paramHumidity),
		CloudCover:  reading(latest, paramCloudCover),
		LightVolume: reading(latest, paramRadiation),
	}
}

func reading(values map[string]float64, name string) *string {
	v, ok := values[name]
	if !ok {
		return nil
	}
	s := formatReading(v)
	return &s
}

func formatReading(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
