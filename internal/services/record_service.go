package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/observation-record-api/internal/models"
	"github.com/yukikurage/observation-record-api/internal/observability"
	"github.com/yukikurage/observation-record-api/internal/policy"
	"github.com/yukikurage/observation-record-api/internal/repository"
	"github.com/yukikurage/observation-record-api/internal/search"
)

var (
	ErrMissingField   = errors.New("missing required field")
	ErrUnknownOwner   = errors.New("unknown record owner")
	ErrRecordNotFound = errors.New("record not found")
)

// RecordService handles observation record business logic.
type RecordService struct {
	records    repository.RecordRepository
	gate       *policy.OwnershipGate
	weather    WeatherProvider
	summarizer Summarizer
	clock      clockwork.Clock
	metrics    *observability.Metrics
	log        logrus.FieldLogger
}

// RecordServiceDeps bundles the collaborators of a RecordService. Weather and
// Summarizer may be nil, which disables that enrichment.
type RecordServiceDeps struct {
	Records    repository.RecordRepository
	Gate       *policy.OwnershipGate
	Weather    WeatherProvider
	Summarizer Summarizer
	Clock      clockwork.Clock
	Metrics    *observability.Metrics
	Log        logrus.FieldLogger
}

// NewRecordService creates a new RecordService.
func NewRecordService(deps RecordServiceDeps) *RecordService {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RecordService{
		records:    deps.Records,
		gate:       deps.Gate,
		weather:    deps.Weather,
		summarizer: deps.Summarizer,
		clock:      clock,
		metrics:    deps.Metrics,
		log:        deps.Log,
	}
}

// ObservatoryInput is the optional observatory of a new record.
type ObservatoryInput struct {
	Name      string
	Latitude  string
	Longitude string
}

// CreateRecordInput holds the fields of a new record. An empty Description is
// filled by the summarizer from the payload. WithWeather is only honoured when
// an observatory is given.
type CreateRecordInput struct {
	Identifier     string
	Description    string
	Payload        string
	RightAscension string
	Declination    string
	Observatory    *ObservatoryInput
	WithWeather    bool
}

func (in CreateRecordInput) validate() error {
	required := []struct {
		name, value string
	}{
		{"recordIdentifier", in.Identifier},
		{"recordPayload", in.Payload},
		{"recordRightAscension", in.RightAscension},
		{"recordDeclination", in.Declination},
	}
	if obs := in.Observatory; obs != nil {
		required = append(required,
			struct{ name, value string }{"observatoryName", obs.Name},
			struct{ name, value string }{"latitude", obs.Latitude},
			struct{ name, value string }{"longitude", obs.Longitude},
		)
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}
	return nil
}

// Create stores a new record owned by username. Weather that cannot be
// retrieved is left out rather than failing the insert.
func (s *RecordService) Create(ctx context.Context, username string, input CreateRecordInput) (*models.Record, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now().UnixMilli()
	record := &models.Record{
		Identifier:     input.Identifier,
		Description:    input.Description,
		Payload:        input.Payload,
		RightAscension: input.RightAscension,
		Declination:    input.Declination,
		TimeReceived:   now,
		Modified:       now,
		UpdateReason:   models.DefaultUpdateReason,
	}

	if record.Description == "" && s.summarizer != nil {
		record.Description = s.summarizer.Summarize(ctx, record.Payload)
	}

	if obs := input.Observatory; obs != nil {
		record.Observatory = &models.Observatory{
			Name:      obs.Name,
			Latitude:  obs.Latitude,
			Longitude: obs.Longitude,
		}
		if input.WithWeather {
			record.Observatory.Weather = s.lookupWeather(ctx, obs.Latitude, obs.Longitude)
		}
	}

	start := time.Now()
	err := s.records.Create(ctx, username, record)
	s.metrics.StorageDuration.WithLabelValues("create").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownOwner
		}
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	s.metrics.RecordsCreated.Inc()
	return record, nil
}

func (s *RecordService) lookupWeather(ctx context.Context, latitude, longitude string) *models.Weather {
	if s.weather == nil {
		return nil
	}
	weather, err := s.weather.Lookup(ctx, latitude, longitude)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"latitude":  latitude,
			"longitude": longitude,
		}).Warn("Weather lookup failed, storing record without weather")
		return nil
	}
	return weather
}

// UpdateRecordInput holds the updatable fields. Nil fields are left unchanged;
// an empty UpdateReason is stored as "N/A".
type UpdateRecordInput struct {
	Description    *string
	RightAscension *string
	Declination    *string
	UpdateReason   string
}

// Update changes a record owned by username. Records of other users and
// records that do not exist both return ErrRecordNotFound.
func (s *RecordService) Update(ctx context.Context, username string, recordID uint64, input UpdateRecordInput) error {
	ownerID, err := s.gate.Authorize(ctx, username, recordID)
	if err != nil {
		if errors.Is(err, policy.ErrNoAccess) {
			s.metrics.RecordsUpdated.WithLabelValues("denied").Inc()
			return ErrRecordNotFound
		}
		return fmt.Errorf("failed to authorize update: %w", err)
	}

	reason := strings.TrimSpace(input.UpdateReason)
	if reason == "" {
		reason = models.DefaultUpdateReason
	}

	start := time.Now()
	updated, err := s.records.Update(ctx, ownerID, recordID, repository.RecordUpdate{
		Description:    input.Description,
		RightAscension: input.RightAscension,
		Declination:    input.Declination,
		UpdateReason:   reason,
		Modified:       s.clock.Now().UnixMilli(),
	})
	s.metrics.StorageDuration.WithLabelValues("update").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if !updated {
		s.metrics.RecordsUpdated.WithLabelValues("denied").Inc()
		return ErrRecordNotFound
	}

	s.metrics.RecordsUpdated.WithLabelValues("updated").Inc()
	return nil
}

// Get returns one record with its nested relations.
func (s *RecordService) Get(ctx context.Context, recordID uint64) (*models.Record, error) {
	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

// List returns every record ordered by id.
func (s *RecordService) List(ctx context.Context) ([]models.Record, error) {
	return s.Search(ctx, nil)
}

// Search returns the records matching filter, ordered by id. Search is not
// scoped to the caller's own records.
func (s *RecordService) Search(ctx context.Context, filter search.Filter) ([]models.Record, error) {
	start := time.Now()
	records, err := s.records.Search(ctx, filter)
	s.metrics.StorageDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, search.ErrInvalidFilter):
		s.metrics.Searches.WithLabelValues("invalid").Inc()
		return nil, err
	case err != nil:
		s.metrics.Searches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to search records: %w", err)
	}

	s.metrics.Searches.WithLabelValues("ok").Inc()
	return records, nil
}
