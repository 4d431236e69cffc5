package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	"github.com/angelmondragon/mesa-backend/pkg/enums"
	"github.com/angelmondragon/mesa-backend/pkg/pagination"
)

// overlapLookback bounds how far before a window a booking can start and still
// overlap it. No booking holds a table longer than this.
const overlapLookback = 24 * time.Hour

// Repository persists tables and bookings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateTable(ctx context.Context, table *models.RestaurantTable) error
	SaveTable(ctx context.Context, table *models.RestaurantTable) error
	DeleteTable(ctx context.Context, id uuid.UUID) (bool, error)
	FindTable(ctx context.Context, id uuid.UUID) (*models.RestaurantTable, error)
	ListTables(ctx context.Context, activeOnly bool) ([]models.RestaurantTable, error)
	// LockCandidateTables returns active tables seating at least partySize,
	// smallest first, locked for the rest of the transaction.
	LockCandidateTables(ctx context.Context, partySize int) ([]models.RestaurantTable, error)

	Create(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	List(ctx context.Context, query ListQuery, cursor *pagination.Cursor, limit int) ([]models.Booking, error)
	// ListHolding returns bookings in a table-holding status that overlap
	// [from, to).
	ListHolding(ctx context.Context, from, to time.Time) ([]models.Booking, error)
	ListByStatusStartedBefore(ctx context.Context, status enums.BookingStatus, cutoff time.Time, limit int) ([]models.Booking, error)
	UpdateStatus(ctx context.Context, booking *models.Booking) error
	UpdateTable(ctx context.Context, bookingID, tableID uuid.UUID) error
	CountByStatusBetween(ctx context.Context, from, to time.Time) (map[enums.BookingStatus]int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateTable(ctx context.Context, table *models.RestaurantTable) error {
	if table.ID == uuid.Nil {
		table.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(table).Error
}

func (r *repository) SaveTable(ctx context.Context, table *models.RestaurantTable) error {
	return r.db.WithContext(ctx).Save(table).Error
}

func (r *repository) DeleteTable(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.RestaurantTable{})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) FindTable(ctx context.Context, id uuid.UUID) (*models.RestaurantTable, error) {
	var table models.RestaurantTable
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&table).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

func (r *repository) ListTables(ctx context.Context, activeOnly bool) ([]models.RestaurantTable, error) {
	query := r.db.WithContext(ctx).Model(&models.RestaurantTable{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var rows []models.RestaurantTable
	if err := query.Order("capacity ASC").Order("label ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) LockCandidateTables(ctx context.Context, partySize int) ([]models.RestaurantTable, error) {
	var rows []models.RestaurantTable
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("is_active = ? AND capacity >= ?", true, partySize).
		Order("capacity ASC").
		Order("label ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("Table").Create(booking).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).Preload("Table").Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) List(ctx context.Context, q ListQuery, cursor *pagination.Cursor, limit int) ([]models.Booking, error) {
	query := r.db.WithContext(ctx).Model(&models.Booking{}).Preload("Table")
	if q.UserID != nil {
		query = query.Where("user_id = ?", *q.UserID)
	}
	if q.Status != nil {
		query = query.Where("status = ?", *q.Status)
	}
	if q.From != nil {
		query = query.Where("reserved_for >= ?", q.From.UTC())
	}
	if q.To != nil {
		query = query.Where("reserved_for < ?", q.To.UTC())
	}

	var rows []models.Booking
	if err := pagination.Apply(query, cursor, limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListHolding(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	var rows []models.Booking
	err := r.db.WithContext(ctx).
		Where("status IN ?", enums.ActiveBookingStatuses).
		Where("table_id IS NOT NULL").
		Where("reserved_for < ? AND reserved_for >= ?", to.UTC(), from.Add(-overlapLookback).UTC()).
		Order("reserved_for ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	overlapping := rows[:0]
	for _, b := range rows {
		if b.EndsAt().After(from) {
			overlapping = append(overlapping, b)
		}
	}
	return overlapping, nil
}

func (r *repository) ListByStatusStartedBefore(ctx context.Context, status enums.BookingStatus, cutoff time.Time, limit int) ([]models.Booking, error) {
	var rows []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND reserved_for < ?", status, cutoff.UTC()).
		Order("reserved_for ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatus(ctx context.Context, booking *models.Booking) error {
	return r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", booking.ID).
		Updates(map[string]any{
			"status":       booking.Status,
			"cancelled_at": booking.CancelledAt,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (r *repository) UpdateTable(ctx context.Context, bookingID, tableID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Updates(map[string]any{
			"table_id":   tableID,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) CountByStatusBetween(ctx context.Context, from, to time.Time) (map[enums.BookingStatus]int64, error) {
	var rows []struct {
		Status enums.BookingStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Select("status, COUNT(*) AS count").
		Where("reserved_for >= ? AND reserved_for < ?", from.UTC(), to.UTC()).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[enums.BookingStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
