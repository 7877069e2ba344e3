package database

import (
	"gorm.io/gorm"
)

// OwnedRecord restricts a records query to one record of one owner. Both
// conditions sit in the same statement so ownership is checked atomically.
func OwnedRecord(ownerID, recordID uint64) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("owner_id = ? AND id = ?", ownerID, recordID)
	}
}
