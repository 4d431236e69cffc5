package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/mesa-backend/pkg/enums"
)

// RowWriter persists warehouse rows.
type RowWriter interface {
	WriteOrderEvent(ctx context.Context, row OrderEventRow) error
	WriteBookingEvent(ctx context.Context, row BookingEventRow) error
}

// Router turns envelopes into rows and hands them to the writer.
type Router struct {
	writer RowWriter
}

func NewRouter(writer RowWriter) (*Router, error) {
	if writer == nil {
		return nil, errors.New("analytics row writer is required")
	}
	return &Router{writer: writer}, nil
}

// Handle writes one row per event. Payload errors wrap ErrInvalidEnvelope;
// writer errors are returned as is so the caller can retry.
func (r *Router) Handle(ctx context.Context, env Envelope) error {
	switch env.EventType {
	case enums.EventOrderCreated:
		row, err := orderCreatedRow(env)
		if err != nil {
			return err
		}
		return r.writer.WriteOrderEvent(ctx, row)
	case enums.EventOrderStatusChanged:
		row, err := orderStatusChangedRow(env)
		if err != nil {
			return err
		}
		return r.writer.WriteOrderEvent(ctx, row)
	case enums.EventBookingCreated:
		row, err := bookingCreatedRow(env)
		if err != nil {
			return err
		}
		return r.writer.WriteBookingEvent(ctx, row)
	case enums.EventBookingStatusChanged:
		row, err := bookingStatusChangedRow(env)
		if err != nil {
			return err
		}
		return r.writer.WriteBookingEvent(ctx, row)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedEventType, env.EventType)
}
