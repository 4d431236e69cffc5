package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mesa-backend/pkg/types"
)

// RestaurantProfile is the single row describing the venue.
type RestaurantProfile struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string             `gorm:"column:name;not null"`
	Description  *string            `gorm:"column:description"`
	Phone        *string            `gorm:"column:phone"`
	Email        *string            `gorm:"column:email"`
	Address      *string            `gorm:"column:address"`
	Timezone     string             `gorm:"column:timezone;not null;default:'UTC'"`
	OpeningHours types.OpeningHours `gorm:"column:opening_hours;type:jsonb;serializer:json"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (RestaurantProfile) TableName() string {
	return "restaurant_profile"
}
