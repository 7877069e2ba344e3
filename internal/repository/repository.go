package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yukikurage/observation-record-api/internal/models"
	"github.com/yukikurage/observation-record-api/internal/search"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a referenced user or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConstraintViolation is returned when a write collides with a unique constraint.
	ErrConstraintViolation = errors.New("constraint violation")
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Create inserts a user whose password has already been hashed
	Create(ctx context.Context, user *models.User) error

	// FindByUsername finds a user by username
	FindByUsername(ctx context.Context, username string) (*models.User, error)

	// ResolveOwnerID returns the id of the user with the given username
	ResolveOwnerID(ctx context.Context, username string) (uint64, error)

	// UsernameExists reports whether the username is taken
	UsernameExists(ctx context.Context, username string) (bool, error)

	// EmailExists reports whether the email is taken
	EmailExists(ctx context.Context, email string) (bool, error)
}

// RecordRepository defines the interface for observation record data access
type RecordRepository interface {
	// Create inserts the record, and its observatory and weather when present,
	// owned by the user with the given username
	Create(ctx context.Context, ownerUsername string, record *models.Record) error

	// FindByID loads a record with its owner, observatory and weather
	FindByID(ctx context.Context, id uint64) (*models.Record, error)

	// OwnerID returns the owner id of a record
	OwnerID(ctx context.Context, recordID uint64) (uint64, error)

	// Update applies the change set to the record only if it belongs to ownerID.
	// It reports whether exactly one row changed.
	Update(ctx context.Context, ownerID, recordID uint64, update RecordUpdate) (bool, error)

	// Search returns the records matching the filter, ordered by id
	Search(ctx context.Context, filter search.Filter) ([]models.Record, error)
}

// RecordUpdate holds the mutable fields of a record. Nil fields are left untouched;
// UpdateReason and Modified are always written.
type RecordUpdate struct {
	Description    *string
	RightAscension *string
	Declination    *string
	UpdateReason   string
	Modified       int64
}

// mapError translates driver and gorm errors into the repository taxonomy.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicate(err):
		return fmt.Errorf("%w: %v", ErrConstraintViolation, err)
	default:
		return err
	}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}
