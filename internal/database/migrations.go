package database

import (
	"fmt"

	"github.com/yukikurage/observation-record-api/internal/models"
	"gorm.io/gorm"
)

// Migrate creates the users, weather, observatories and records tables when
// missing, then adds the secondary indexes. Safe to run on every start.
func Migrate(db *gorm.DB) error {
	// Weather and observatories first: records reference them.
	err := db.AutoMigrate(
		&models.User{},
		&models.Weather{},
		&models.Observatory{},
		&models.Record{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := AddIndexes(db); err != nil {
		return fmt.Errorf("failed to add indexes: %w", err)
	}
	return nil
}

// AddIndexes adds the composite indexes the update and search paths rely on.
func AddIndexes(db *gorm.DB) error {
	indexes := []struct {
		table   string
		name    string
		columns string
	}{
		// Update matches on owner and id together
		{"records", "idx_records_owner_id_id", "owner_id, id"},
		// Identifier + time filters are the common search shape
		{"records", "idx_records_identifier_time_received", "identifier, time_received"},
	}

	for _, idx := range indexes {
		if db.Migrator().HasIndex(idx.table, idx.name) {
			continue
		}

		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.columns)
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}
