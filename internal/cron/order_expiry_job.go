package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/mesa-backend/pkg/logger"
)

const (
	defaultPendingExpiry = 2 * time.Hour
	orderExpiryBatch     = 200
)

type orderExpirer interface {
	ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type OrderExpiryJobParams struct {
	Logger *logger.Logger
	Orders orderExpirer
	// PendingFor is how long an order may sit in pending before it is cancelled.
	PendingFor time.Duration
}

// NewOrderExpiryJob cancels orders nobody confirmed in time.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	pendingFor := params.PendingFor
	if pendingFor <= 0 {
		pendingFor = defaultPendingExpiry
	}
	return &orderExpiryJob{
		logg:       params.Logger,
		orders:     params.Orders,
		pendingFor: pendingFor,
		batch:      orderExpiryBatch,
		now:        time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg       *logger.Logger
	orders     orderExpirer
	pendingFor time.Duration
	batch      int
	now        func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.pendingFor)
	expired, err := j.orders.ExpireStalePending(ctx, cutoff, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"expired": expired,
	})
	if err != nil {
		return fmt.Errorf("expire pending orders: %w", err)
	}
	j.logg.Info(logCtx, "order expiry complete")
	return nil
}
