package repository

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/observation-record-api/internal/database"
	"github.com/yukikurage/observation-record-api/internal/models"
	"github.com/yukikurage/observation-record-api/internal/search"
	"gorm.io/gorm/logger"
)

type RepositorySuite struct {
	suite.Suite
	ctx     context.Context
	engine  *database.Engine
	users   UserRepository
	records RecordRepository
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupTest() {
	log := logrus.New()
	log.SetOutput(io.Discard)

	engine, err := database.Open(database.Options{
		Driver:         "sqlite",
		Path:           filepath.Join(s.T().TempDir(), "records.db"),
		MaxOpenConns:   8,
		MinIdleConns:   2,
		AcquireTimeout: 5 * time.Second,
		LogLevel:       logger.Silent,
		Logger:         log,
	})
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.engine = engine
	s.users = NewUserRepository(engine)
	s.records = NewRecordRepository(engine)
}

func (s *RepositorySuite) TearDownTest() {
	s.engine.Close()
}

func (s *RepositorySuite) createUser(username, nickname string) *models.User {
	user := &models.User{
		Username:     username,
		PasswordHash: "$2a$10$hash",
		Email:        username + "@example.com",
		Nickname:     nickname,
	}
	s.Require().NoError(s.users.Create(s.ctx, user))
	return user
}

func newRecord(identifier string, received time.Time) *models.Record {
	ms := received.UnixMilli()
	return &models.Record{
		Identifier:     identifier,
		Description:    "faint object near the horizon",
		Payload:        "raw-bytes",
		RightAscension: "10.684708",
		Declination:    "41.268750",
		TimeReceived:   ms,
		Modified:       ms,
		UpdateReason:   models.DefaultUpdateReason,
	}
}

func strPtr(s string) *string { return &s }

func (s *RepositorySuite) TestCreateUser_DuplicateUsername() {
	s.createUser("alice", "Alice")

	err := s.users.Create(s.ctx, &models.User{
		Username:     "alice",
		PasswordHash: "x",
		Email:        "other@example.com",
		Nickname:     "Other",
	})
	s.ErrorIs(err, ErrConstraintViolation)

	var count int64
	s.Require().NoError(s.engine.DB().Model(&models.User{}).Where("username = ?", "alice").Count(&count).Error)
	s.Equal(int64(1), count)
}

func (s *RepositorySuite) TestCreateUser_DuplicateEmail() {
	s.createUser("alice", "Alice")

	err := s.users.Create(s.ctx, &models.User{
		Username:     "bob",
		PasswordHash: "x",
		Email:        "alice@example.com",
		Nickname:     "Bob",
	})
	s.ErrorIs(err, ErrConstraintViolation)

	exists, err := s.users.UsernameExists(s.ctx, "bob")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *RepositorySuite) TestUserLookups() {
	user := s.createUser("alice", "Alice")

	id, err := s.users.ResolveOwnerID(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(user.ID, id)

	_, err = s.users.ResolveOwnerID(s.ctx, "nobody")
	s.ErrorIs(err, ErrNotFound)

	found, err := s.users.FindByUsername(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal("$2a$10$hash", found.PasswordHash)

	exists, err := s.users.EmailExists(s.ctx, "alice@example.com")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *RepositorySuite) TestCreateRecord_UnknownOwner() {
	err := s.records.Create(s.ctx, "ghost", newRecord("M31", time.Now()))
	s.ErrorIs(err, ErrNotFound)

	all, err := s.records.Search(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *RepositorySuite) TestCreateRecord_OptionalNesting() {
	owner := s.createUser("alice", "Alice")
	now := time.Now()

	bare := newRecord("bare", now)
	s.Require().NoError(s.records.Create(s.ctx, "alice", bare))
	s.Equal(owner.ID, bare.OwnerID)
	s.Nil(bare.ObservatoryID)

	withObs := newRecord("obs", now)
	withObs.Observatory = &models.Observatory{Name: "Metsähovi", Latitude: "60.2172", Longitude: "24.3934"}
	s.Require().NoError(s.records.Create(s.ctx, "alice", withObs))

	withWeather := newRecord("weather", now)
	withWeather.Observatory = &models.Observatory{
		Name:      "Kevo",
		Latitude:  "69.7569",
		Longitude: "27.0125",
		Weather:   &models.Weather{Temperature: "263.15", Humidity: strPtr("81.0")},
	}
	s.Require().NoError(s.records.Create(s.ctx, "alice", withWeather))

	results, err := s.records.Search(s.ctx, nil)
	s.Require().NoError(err)
	s.Require().Len(results, 3)

	s.Equal("bare", results[0].Identifier)
	s.False(results[0].HasObservatory())
	s.Equal("Alice", results[0].OwnerNickname())

	s.Equal("obs", results[1].Identifier)
	s.Require().True(results[1].HasObservatory())
	s.Equal("60.2172", results[1].Observatory.Latitude)
	s.False(results[1].HasWeather())

	s.Equal("weather", results[2].Identifier)
	s.Require().True(results[2].HasWeather())
	w := results[2].Observatory.Weather
	s.Equal("263.15", w.Temperature)
	s.Require().NotNil(w.Humidity)
	s.Equal("81.0", *w.Humidity)
	s.Nil(w.Pressure)

	loaded, err := s.records.FindByID(s.ctx, withWeather.ID)
	s.Require().NoError(err)
	s.Equal("Kevo", loaded.Observatory.Name)
	s.Equal("263.15", loaded.Observatory.Weather.Temperature)
	s.Equal("alice", loaded.Owner.Username)
}

func (s *RepositorySuite) TestOwnerID() {
	owner := s.createUser("alice", "Alice")
	record := newRecord("M31", time.Now())
	s.Require().NoError(s.records.Create(s.ctx, "alice", record))

	id, err := s.records.OwnerID(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(owner.ID, id)

	_, err = s.records.OwnerID(s.ctx, record.ID+100)
	s.ErrorIs(err, ErrNotFound)

	_, err = s.records.FindByID(s.ctx, record.ID+100)
	s.ErrorIs(err, ErrNotFound)
}

func (s *RepositorySuite) TestUpdate_OwnerOnly() {
	alice := s.createUser("alice", "Alice")
	bob := s.createUser("bob", "Bob")

	created := time.Date(2025, 1, 10, 20, 0, 0, 0, time.UTC)
	record := newRecord("M42", created)
	s.Require().NoError(s.records.Create(s.ctx, "alice", record))

	later := created.Add(time.Hour).UnixMilli()
	update := RecordUpdate{
		Description:  strPtr("Orion nebula, clearer seeing"),
		UpdateReason: "better seeing",
		Modified:     later,
	}

	ok, err := s.records.Update(s.ctx, bob.ID, record.ID, update)
	s.Require().NoError(err)
	s.False(ok)

	missing, err := s.records.Update(s.ctx, alice.ID, record.ID+100, update)
	s.Require().NoError(err)
	s.Equal(ok, missing)

	unchanged, err := s.records.FindByID(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal("faint object near the horizon", unchanged.Description)
	s.False(unchanged.WasUpdated())

	ok, err = s.records.Update(s.ctx, alice.ID, record.ID, update)
	s.Require().NoError(err)
	s.True(ok)

	updated, err := s.records.FindByID(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal("Orion nebula, clearer seeing", updated.Description)
	s.Equal("10.684708", updated.RightAscension)
	s.Equal("better seeing", updated.UpdateReason)
	s.Equal(later, updated.Modified)
	s.Equal(created.UnixMilli(), updated.TimeReceived)
	s.True(updated.WasUpdated())
}

func (s *RepositorySuite) TestSearch_Filters() {
	s.createUser("alice", "Alice")
	s.createUser("bob", "Bob")

	t1 := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t2.Add(time.Hour)

	s.Require().NoError(s.records.Create(s.ctx, "alice", newRecord("M31", t1)))
	s.Require().NoError(s.records.Create(s.ctx, "bob", newRecord("M42", t2)))
	s.Require().NoError(s.records.Create(s.ctx, "alice", newRecord("M31", t3)))

	tests := []struct {
		name   string
		filter search.Filter
		want   []int64
	}{
		{"none", nil, []int64{t1.UnixMilli(), t2.UnixMilli(), t3.UnixMilli()}},
		{"identification", search.Filter{search.KeyIdentification: "M31"}, []int64{t1.UnixMilli(), t3.UnixMilli()}},
		{"nickname", search.Filter{search.KeyNickname: "Bob"}, []int64{t2.UnixMilli()}},
		{"before", search.Filter{search.KeyBefore: search.FormatTime(t2)}, []int64{t1.UnixMilli()}},
		{"after", search.Filter{search.KeyAfter: search.FormatTime(t2)}, []int64{t3.UnixMilli()}},
		{"combined", search.Filter{
			search.KeyIdentification: "M31",
			search.KeyAfter:          search.FormatTime(t1),
			search.KeyNickname:       "Alice",
		}, []int64{t3.UnixMilli()}},
		{"no match", search.Filter{search.KeyIdentification: "NGC 224"}, nil},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			results, err := s.records.Search(s.ctx, tt.filter)
			s.Require().NoError(err)
			var got []int64
			for _, r := range results {
				got = append(got, r.TimeReceived)
			}
			s.Equal(tt.want, got)
		})
	}
}

func (s *RepositorySuite) TestSearch_InvalidFilter() {
	_, err := s.records.Search(s.ctx, search.Filter{search.KeyBefore: "yesterday"})
	s.ErrorIs(err, search.ErrInvalidFilter)

	_, err = s.records.Search(s.ctx, search.Filter{"owner": "alice"})
	s.ErrorIs(err, search.ErrInvalidFilter)
}

func (s *RepositorySuite) TestCreateRecord_Concurrent() {
	s.createUser("alice", "Alice")

	const n = 24
	var wg sync.WaitGroup
	errs := make([]error, n)
	ids := make([]uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := newRecord(fmt.Sprintf("obj-%d", i), time.Now())
			if i%2 == 0 {
				r.Observatory = &models.Observatory{
					Name:      fmt.Sprintf("site-%d", i),
					Latitude:  "60.0",
					Longitude: "25.0",
					Weather:   &models.Weather{Temperature: "270.00"},
				}
			}
			errs[i] = s.records.Create(s.ctx, "alice", r)
			ids[i] = r.ID
		}(i)
	}
	wg.Wait()

	seen := map[uint64]bool{}
	for i := 0; i < n; i++ {
		s.Require().NoError(errs[i])
		s.NotZero(ids[i])
		s.False(seen[ids[i]], "duplicate id %d", ids[i])
		seen[ids[i]] = true
	}

	results, err := s.records.Search(s.ctx, nil)
	s.Require().NoError(err)
	s.Len(results, n)
	for i := 1; i < len(results); i++ {
		s.Less(results[i-1].ID, results[i].ID)
	}
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(fmt.Errorf("wrapped: %w", ErrNotFound)), ErrNotFound)

	err := mapError(fmt.Errorf("UNIQUE constraint failed: users.username"))
	require.ErrorIs(t, err, ErrConstraintViolation)
	assert.Contains(t, err.Error(), "users.username")

	other := fmt.Errorf("disk I/O error")
	assert.Equal(t, other, mapError(other))
}
