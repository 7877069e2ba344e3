package repository

import (
	"context"

	"github.com/yukikurage/observation-record-api/internal/database"
	"github.com/yukikurage/observation-record-api/internal/models"
	"github.com/yukikurage/observation-record-api/internal/search"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRecordRepository is a GORM implementation of RecordRepository
type GormRecordRepository struct {
	engine *database.Engine
}

// NewRecordRepository creates a new RecordRepository
func NewRecordRepository(engine *database.Engine) RecordRepository {
	return &GormRecordRepository{engine: engine}
}

// Create resolves the owner and inserts weather, observatory and record in one
// transaction. Weather goes first because the observatory row references it,
// and the record goes last so it never points at a half-written observatory.
func (r *GormRecordRepository) Create(ctx context.Context, ownerUsername string, record *models.Record) error {
	return r.engine.Run(ctx, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			var owner models.User
			if err := tx.Select("id", "nickname").Where("username = ?", ownerUsername).First(&owner).Error; err != nil {
				return mapError(err)
			}
			record.OwnerID = owner.ID
			record.Owner = &models.User{ID: owner.ID, Nickname: owner.Nickname}

			if obs := record.Observatory; obs != nil {
				if w := obs.Weather; w != nil {
					if err := tx.Create(w).Error; err != nil {
						return mapError(err)
					}
					obs.WeatherID = &w.ID
				}
				if err := tx.Omit(clause.Associations).Create(obs).Error; err != nil {
					return mapError(err)
				}
				record.ObservatoryID = &obs.ID
			}

			return mapError(tx.Omit(clause.Associations).Create(record).Error)
		})
	})
}

// FindByID loads a record with its owner, observatory and weather
func (r *GormRecordRepository) FindByID(ctx context.Context, id uint64) (*models.Record, error) {
	var record models.Record
	err := r.engine.Run(ctx, func(db *gorm.DB) error {
		return mapError(db.
			Preload("Owner").
			Preload("Observatory").
			Preload("Observatory.Weather").
			First(&record, id).Error)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// OwnerID returns the owner id of a record
func (r *GormRecordRepository) OwnerID(ctx context.Context, recordID uint64) (uint64, error) {
	var record models.Record
	err := r.engine.Run(ctx, func(db *gorm.DB) error {
		return mapError(db.Select("owner_id").Where("id = ?", recordID).First(&record).Error)
	})
	if err != nil {
		return 0, err
	}
	return record.OwnerID, nil
}

// Update writes only the supplied fields. A record of another owner and a
// missing record both match zero rows and report false.
func (r *GormRecordRepository) Update(ctx context.Context, ownerID, recordID uint64, update RecordUpdate) (bool, error) {
	changes := map[string]interface{}{
		"update_reason": update.UpdateReason,
		"modified":      update.Modified,
	}
	if update.Description != nil {
		changes["description"] = *update.Description
	}
	if update.RightAscension != nil {
		changes["right_ascension"] = *update.RightAscension
	}
	if update.Declination != nil {
		changes["declination"] = *update.Declination
	}

	var affected int64
	err := r.engine.Run(ctx, func(db *gorm.DB) error {
		result := db.Model(&models.Record{}).
			Scopes(database.OwnedRecord(ownerID, recordID)).
			Updates(changes)
		affected = result.RowsAffected
		return mapError(result.Error)
	})
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Search runs the filter's statement and rebuilds the optional observatory and
// weather from the joined columns.
func (r *GormRecordRepository) Search(ctx context.Context, filter search.Filter) ([]models.Record, error) {
	q, err := search.Build(filter)
	if err != nil {
		return nil, err
	}

	var rows []recordRow
	err = r.engine.Run(ctx, func(db *gorm.DB) error {
		return db.Raw(q.SQL, q.Args...).Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	records := make([]models.Record, len(rows))
	for i := range rows {
		records[i] = rows[i].toModel()
	}
	return records, nil
}

// recordRow mirrors the column aliases of the search statement.
type recordRow struct {
	ID             uint64
	Identifier     string
	Description    string
	Payload        string
	RightAscension string
	Declination    string
	OwnerID        uint64
	OwnerNickname  string
	TimeReceived   int64
	UpdateReason   string
	Modified       int64

	ObservatoryID        *uint64
	ObservatoryName      *string
	ObservatoryLatitude  *string
	ObservatoryLongitude *string

	WeatherID          *uint64
	WeatherTemperature *string
	WeatherPressure    *string
	WeatherHumidity    *string
	WeatherCloudCover  *string
	WeatherLightVolume *string
}

// toModel nests the observatory only when its primary key was joined, and the
// weather only when both keys were.
func (row recordRow) toModel() models.Record {
	record := models.Record{
		ID:             row.ID,
		Identifier:     row.Identifier,
		Description:    row.Description,
		Payload:        row.Payload,
		RightAscension: row.RightAscension,
		Declination:    row.Declination,
		OwnerID:        row.OwnerID,
		TimeReceived:   row.TimeReceived,
		UpdateReason:   row.UpdateReason,
		Modified:       row.Modified,
		Owner:          &models.User{ID: row.OwnerID, Nickname: row.OwnerNickname},
	}

	if row.ObservatoryID == nil {
		return record
	}
	record.ObservatoryID = row.ObservatoryID
	record.Observatory = &models.Observatory{
		ID:        *row.ObservatoryID,
		Name:      deref(row.ObservatoryName),
		Latitude:  deref(row.ObservatoryLatitude),
		Longitude: deref(row.ObservatoryLongitude),
	}

	if row.WeatherID == nil {
		return record
	}
	record.Observatory.WeatherID = row.WeatherID
	record.Observatory.Weather = &models.Weather{
		ID:          *row.WeatherID,
		Temperature: deref(row.WeatherTemperature),
		Pressure:    row.WeatherPressure,
		Humidity:    row.WeatherHumidity,
		CloudCover:  row.WeatherCloudCover,
		LightVolume: row.WeatherLightVolume,
	}
	return record
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
