package dashboard

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	"github.com/angelmondragon/mesa-backend/pkg/enums"
)

// OrderTotal is the status and total of one order.
type OrderTotal struct {
	Status enums.OrderStatus
	Total  decimal.Decimal
}

// Repository reads the aggregates behind the dashboard.
type Repository interface {
	OrdersBetween(ctx context.Context, from, to time.Time) ([]OrderTotal, error)
	CountActivePromotions(ctx context.Context, at time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// OrdersBetween loads status and total per order; revenue is summed in Go so
// decimal precision does not depend on the driver's SUM type.
func (r *repository) OrdersBetween(ctx context.Context, from, to time.Time) ([]OrderTotal, error) {
	var rows []OrderTotal
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("status, total").
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountActivePromotions(ctx context.Context, at time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("is_active = ?", true).
		Where("starts_at IS NULL OR starts_at <= ?", at.UTC()).
		Where("ends_at IS NULL OR ends_at > ?", at.UTC()).
		Count(&n).Error
	return n, err
}
