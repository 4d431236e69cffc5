package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mesa-backend/pkg/db/dbtest"
	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	"github.com/angelmondragon/mesa-backend/pkg/enums"
	"github.com/angelmondragon/mesa-backend/pkg/types"
)

type utcSchedule struct{}

func (utcSchedule) Schedule(context.Context) (types.OpeningHours, *time.Location, error) {
	return nil, time.UTC, nil
}

type stubBookings map[enums.BookingStatus]int64

func (s stubBookings) CountByStatusOn(context.Context, time.Time) (map[enums.BookingStatus]int64, error) {
	return s, nil
}

func TestTodaySummary(t *testing.T) {
	client := dbtest.Open(t)
	ctx := context.Background()
	gdb := client.DB()
	now := time.Date(2026, 7, 1, 15, 0, 0, 0, time.UTC)

	orders := []models.Order{
		{Status: enums.OrderStatusCompleted, Subtotal: decimal.RequireFromString("130"), Discount: decimal.RequireFromString("13"), Total: decimal.RequireFromString("117"), CreatedAt: now.Add(-2 * time.Hour)},
		{Status: enums.OrderStatusPending, Subtotal: decimal.RequireFromString("20.50"), Total: decimal.RequireFromString("20.50"), CreatedAt: now.Add(-time.Hour)},
		{Status: enums.OrderStatusCancelled, Subtotal: decimal.RequireFromString("99"), Total: decimal.RequireFromString("99"), CreatedAt: now.Add(-time.Hour)},
		{Status: enums.OrderStatusCompleted, Subtotal: decimal.RequireFromString("500"), Total: decimal.RequireFromString("500"), CreatedAt: now.AddDate(0, 0, -1)},
	}
	for i := range orders {
		orders[i].ID = uuid.New()
		require.NoError(t, gdb.Create(&orders[i]).Error)
	}

	ended := now.Add(-time.Hour)
	promos := []models.Promotion{
		{Code: "LIVE", Description: "live", DiscountPercentage: decimal.NewFromInt(10), IsActive: true},
		{Code: "OFF", Description: "inactive", DiscountPercentage: decimal.NewFromInt(10), IsActive: false},
		{Code: "OVER", Description: "ended", DiscountPercentage: decimal.NewFromInt(10), IsActive: true, EndsAt: &ended},
	}
	for i := range promos {
		promos[i].ID = uuid.New()
		require.NoError(t, gdb.Create(&promos[i]).Error)
	}

	svc, err := NewService(NewRepository(gdb), utcSchedule{}, stubBookings{
		enums.BookingStatusConfirmed: 3,
		enums.BookingStatusCancelled: 1,
	})
	require.NoError(t, err)
	svc.(*service).now = func() time.Time { return now }

	summary, err := svc.Today(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-07-01", summary.Date)
	assert.Equal(t, int64(2), summary.Orders.Count)
	assert.True(t, decimal.RequireFromString("137.50").Equal(summary.Orders.Revenue), "revenue %s", summary.Orders.Revenue)
	assert.Equal(t, int64(1), summary.Orders.ByStatus[enums.OrderStatusCancelled])
	assert.Equal(t, int64(1), summary.Orders.ByStatus[enums.OrderStatusCompleted])
	assert.Equal(t, int64(4), summary.Bookings.Count)
	assert.Equal(t, int64(1), summary.ActivePromotions)
}
