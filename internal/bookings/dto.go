package bookings

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	"github.com/angelmondragon/mesa-backend/pkg/enums"
)

// TableDTO is a bookable table.
type TableDTO struct {
	ID        uuid.UUID `json:"id"`
	Label     string    `json:"label"`
	Capacity  int       `json:"capacity"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateTableInput struct {
	Label    string
	Capacity int
	IsActive *bool
}

type UpdateTableInput struct {
	Label    *string
	Capacity *int
	IsActive *bool
}

// GuestContact identifies a diner booking without an account.
type GuestContact struct {
	Name  string
	Email string
	Phone *string
}

type CreateBookingInput struct {
	UserID      *uuid.UUID
	Guest       *GuestContact
	PartySize   int
	ReservedFor time.Time
	Notes       *string
}

// ListFilters narrows booking listings. Date (YYYY-MM-DD) selects one calendar
// day in the venue's timezone.
type ListFilters struct {
	UserID *uuid.UUID
	Status *enums.BookingStatus
	Date   *string
}

// ListQuery is the resolved repository filter.
type ListQuery struct {
	UserID *uuid.UUID
	Status *enums.BookingStatus
	From   *time.Time
	To     *time.Time
}

// StatusChangeInput moves a booking along its lifecycle.
type StatusChangeInput struct {
	BookingID uuid.UUID
	Status    enums.BookingStatus
	Role      enums.UserRole
	ActorID   *uuid.UUID
}

// Slot is a start time with at least one free table for the party.
type Slot struct {
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	TablesFree int       `json:"tables_free"`
}

type BookingDTO struct {
	ID              uuid.UUID           `json:"id"`
	UserID          *uuid.UUID          `json:"user_id,omitempty"`
	GuestName       *string             `json:"guest_name,omitempty"`
	GuestEmail      *string             `json:"guest_email,omitempty"`
	GuestPhone      *string             `json:"guest_phone,omitempty"`
	TableID         *uuid.UUID          `json:"table_id,omitempty"`
	TableLabel      *string             `json:"table_label,omitempty"`
	PartySize       int                 `json:"party_size"`
	ReservedFor     time.Time           `json:"reserved_for"`
	EndsAt          time.Time           `json:"ends_at"`
	DurationMinutes int                 `json:"duration_minutes"`
	Status          enums.BookingStatus `json:"status"`
	Notes           *string             `json:"notes,omitempty"`
	CancelledAt     *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func TableFromModel(m models.RestaurantTable) TableDTO {
	return TableDTO{
		ID:        m.ID,
		Label:     m.Label,
		Capacity:  m.Capacity,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func FromModel(m models.Booking) BookingDTO {
	dto := BookingDTO{
		ID:              m.ID,
		UserID:          m.UserID,
		GuestName:       m.GuestName,
		GuestEmail:      m.GuestEmail,
		GuestPhone:      m.GuestPhone,
		TableID:         m.TableID,
		PartySize:       m.PartySize,
		ReservedFor:     m.ReservedFor,
		EndsAt:          m.EndsAt(),
		DurationMinutes: m.DurationMinutes,
		Status:          m.Status,
		Notes:           m.Notes,
		CancelledAt:     m.CancelledAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.Table != nil {
		label := m.Table.Label
		dto.TableLabel = &label
	}
	return dto
}
