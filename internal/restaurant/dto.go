package restaurant

import (
	"time"

	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	"github.com/angelmondragon/mesa-backend/pkg/types"
)

// ProfileDTO is the public view of the venue.
type ProfileDTO struct {
	Name         string             `json:"name"`
	Description  *string            `json:"description,omitempty"`
	Phone        *string            `json:"phone,omitempty"`
	Email        *string            `json:"email,omitempty"`
	Address      *string            `json:"address,omitempty"`
	Timezone     string             `json:"timezone"`
	OpeningHours types.OpeningHours `json:"opening_hours"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// UpsertInput replaces the profile wholesale.
type UpsertInput struct {
	Name         string
	Description  *string
	Phone        *string
	Email        *string
	Address      *string
	Timezone     string
	OpeningHours types.OpeningHours
}

func FromModel(m models.RestaurantProfile) ProfileDTO {
	hours := m.OpeningHours
	if hours == nil {
		hours = types.OpeningHours{}
	}
	return ProfileDTO{
		Name:         m.Name,
		Description:  m.Description,
		Phone:        m.Phone,
		Email:        m.Email,
		Address:      m.Address,
		Timezone:     m.Timezone,
		OpeningHours: hours,
		UpdatedAt:    m.UpdatedAt,
	}
}
