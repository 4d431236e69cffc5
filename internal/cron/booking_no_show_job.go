package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/mesa-backend/pkg/logger"
)

const bookingSweepBatch = 200

type bookingSweeper interface {
	SweepNoShows(ctx context.Context, now time.Time, limit int) (int, error)
	CompleteFinished(ctx context.Context, now time.Time, limit int) (int, error)
}

type BookingNoShowJobParams struct {
	Logger   *logger.Logger
	Bookings bookingSweeper
}

// NewBookingNoShowJob marks missed reservations and closes finished seatings.
func NewBookingNoShowJob(params BookingNoShowJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("booking service required")
	}
	return &bookingNoShowJob{
		logg:     params.Logger,
		bookings: params.Bookings,
		batch:    bookingSweepBatch,
		now:      time.Now,
	}, nil
}

type bookingNoShowJob struct {
	logg     *logger.Logger
	bookings bookingSweeper
	batch    int
	now      func() time.Time
}

func (j *bookingNoShowJob) Name() string { return "booking-no-show" }

func (j *bookingNoShowJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error

	noShows, err := j.bookings.SweepNoShows(ctx, now, j.batch)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("sweep no-shows: %w", err))
	}
	completed, err := j.bookings.CompleteFinished(ctx, now, j.batch)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("complete finished bookings: %w", err))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"no_shows":  noShows,
		"completed": completed,
	})
	j.logg.Info(logCtx, "booking sweep complete")
	return errs
}
