package restaurant

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mesa-backend/pkg/db/models"
)

// Repository stores the single restaurant profile row.
type Repository interface {
	Get(ctx context.Context) (*models.RestaurantProfile, error)
	Save(ctx context.Context, profile *models.RestaurantProfile) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Get returns the oldest profile row, or gorm.ErrRecordNotFound.
func (r *repository) Get(ctx context.Context) (*models.RestaurantProfile, error) {
	var profile models.RestaurantProfile
	if err := r.db.WithContext(ctx).Order("created_at ASC").First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repository) Save(ctx context.Context, profile *models.RestaurantProfile) error {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
		return r.db.WithContext(ctx).Create(profile).Error
	}
	return r.db.WithContext(ctx).Save(profile).Error
}
