package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mesa-backend/pkg/enums"
)

// RestaurantTable is a bookable table in the dining room.
type RestaurantTable struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Label     string    `gorm:"column:label;not null;uniqueIndex"`
	Capacity  int       `gorm:"column:capacity;not null"`
	IsActive  bool      `gorm:"column:is_active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Booking is a table reservation for a registered user or a guest.
type Booking struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          *uuid.UUID          `gorm:"column:user_id;type:uuid"`
	GuestName       *string             `gorm:"column:guest_name"`
	GuestEmail      *string             `gorm:"column:guest_email"`
	GuestPhone      *string             `gorm:"column:guest_phone"`
	TableID         *uuid.UUID          `gorm:"column:table_id;type:uuid"`
	Table           *RestaurantTable    `gorm:"foreignKey:TableID"`
	PartySize       int                 `gorm:"column:party_size;not null"`
	ReservedFor     time.Time           `gorm:"column:reserved_for;not null"`
	DurationMinutes int                 `gorm:"column:duration_minutes;not null"`
	Status          enums.BookingStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Notes           *string             `gorm:"column:notes"`
	CancelledAt     *time.Time          `gorm:"column:cancelled_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// EndsAt is ReservedFor plus the held duration.
func (b Booking) EndsAt() time.Time {
	return b.ReservedFor.Add(time.Duration(b.DurationMinutes) * time.Minute)
}
