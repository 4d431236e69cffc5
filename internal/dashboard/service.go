package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mesa-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
	"github.com/angelmondragon/mesa-backend/pkg/types"
)

type scheduleSource interface {
	Schedule(ctx context.Context) (types.OpeningHours, *time.Location, error)
}

type bookingCounter interface {
	CountByStatusOn(ctx context.Context, day time.Time) (map[enums.BookingStatus]int64, error)
}

// Service builds the admin dashboard.
type Service interface {
	Today(ctx context.Context) (*Summary, error)
}

type service struct {
	repo     Repository
	schedule scheduleSource
	bookings bookingCounter
	now      func() time.Time
}

func NewService(repo Repository, schedule scheduleSource, bookings bookingCounter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("dashboard repository required")
	}
	if schedule == nil {
		return nil, fmt.Errorf("schedule source required")
	}
	if bookings == nil {
		return nil, fmt.Errorf("booking counter required")
	}
	return &service{repo: repo, schedule: schedule, bookings: bookings, now: time.Now}, nil
}

func (s *service) Today(ctx context.Context) (*Summary, error) {
	_, loc, err := s.schedule.Schedule(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load schedule")
	}
	now := s.now().In(loc)
	y, m, d := now.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1)

	orders, err := s.repo.OrdersBetween(ctx, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load orders")
	}
	bookingCounts, err := s.bookings.CountByStatusOn(ctx, now)
	if err != nil {
		return nil, err
	}
	promos, err := s.repo.CountActivePromotions(ctx, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count promotions")
	}

	summary := &Summary{
		Date:     from.Format("2006-01-02"),
		Timezone: loc.String(),
		Orders: OrderSummary{
			Revenue:  decimal.Zero,
			ByStatus: map[enums.OrderStatus]int64{},
		},
		Bookings:         BookingSummary{ByStatus: bookingCounts},
		ActivePromotions: promos,
	}
	for _, o := range orders {
		summary.Orders.ByStatus[o.Status]++
		if o.Status == enums.OrderStatusCancelled {
			continue
		}
		summary.Orders.Count++
		summary.Orders.Revenue = summary.Orders.Revenue.Add(o.Total)
	}
	for _, n := range bookingCounts {
		summary.Bookings.Count += n
	}
	return summary, nil
}
