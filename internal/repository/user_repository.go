package repository

import (
	"context"

	"github.com/yukikurage/observation-record-api/internal/database"
	"github.com/yukikurage/observation-record-api/internal/models"
	"gorm.io/gorm"
)

// GormUserRepository is a GORM implementation of UserRepository
type GormUserRepository struct {
	engine *database.Engine
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(engine *database.Engine) UserRepository {
	return &GormUserRepository{engine: engine}
}

// Create creates a new user. Uniqueness of username and email is enforced by
// the table constraints.
func (r *GormUserRepository) Create(ctx context.Context, user *models.User) error {
	return r.engine.Run(ctx, func(db *gorm.DB) error {
		return mapError(db.Create(user).Error)
	})
}

// FindByUsername finds a user by username
func (r *GormUserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.engine.Run(ctx, func(db *gorm.DB) error {
		return mapError(db.Where("username = ?", username).First(&user).Error)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ResolveOwnerID returns the id of the user with the given username
func (r *GormUserRepository) ResolveOwnerID(ctx context.Context, username string) (uint64, error) {
	var user models.User
	err := r.engine.Run(ctx, func(db *gorm.DB) error {
		return mapError(db.Select("id").Where("username = ?", username).First(&user).Error)
	})
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// UsernameExists reports whether the username is taken
func (r *GormUserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "username = ?", username)
}

// EmailExists reports whether the email is taken
func (r *GormUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email = ?", email)
}

func (r *GormUserRepository) exists(ctx context.Context, cond string, arg string) (bool, error) {
	var count int64
	err := r.engine.Run(ctx, func(db *gorm.DB) error {
		return db.Model(&models.User{}).Where(cond, arg).Limit(1).Count(&count).Error
	})
	return count > 0, err
}
