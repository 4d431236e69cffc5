package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// WriterConfig names the destination tables and the insert retry policy.
type WriterConfig struct {
	OrderEventsTable   string
	BookingEventsTable string
	RetryPolicy        RetryPolicy
}

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter streams rows into BigQuery, retrying transient failures.
type BigQueryWriter struct {
	client       tableInserter
	orderTable   string
	bookingTable string
	retry        RetryPolicy
}

func NewBigQueryWriter(client tableInserter, cfg WriterConfig) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	orders := strings.TrimSpace(cfg.OrderEventsTable)
	if orders == "" {
		return nil, errors.New("order events table is required")
	}
	bookings := strings.TrimSpace(cfg.BookingEventsTable)
	if bookings == "" {
		return nil, errors.New("booking events table is required")
	}

	retry := cfg.RetryPolicy
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = max(defaultMaximumBackoff, retry.InitialBackoff)
	}

	return &BigQueryWriter{client: client, orderTable: orders, bookingTable: bookings, retry: retry}, nil
}

func (w *BigQueryWriter) WriteOrderEvent(ctx context.Context, row OrderEventRow) error {
	return w.insertWithRetry(ctx, w.orderTable, []any{&row})
}

func (w *BigQueryWriter) WriteBookingEvent(ctx context.Context, row BookingEventRow) error {
	return w.insertWithRetry(ctx, w.bookingTable, []any{&row})
}

func (w *BigQueryWriter) insertWithRetry(ctx context.Context, table string, rows []any) error {
	backoff := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.client.InsertRows(ctx, table, rows)
		if err == nil {
			return nil
		}
		if attempt >= w.retry.MaxAttempts || !isRetryable(err) {
			return fmt.Errorf("insert %s rows: %w", table, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}

// isRetryable reports whether every underlying failure is transient. A single
// schema or permission error makes the whole insert permanent.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var multi bigquery.MultiError
	if errors.As(err, &multi) {
		if len(multi) == 0 {
			return false
		}
		for _, inner := range multi {
			if !isRetryable(inner) {
				return false
			}
		}
		return true
	}

	var pme bigquery.PutMultiError
	if errors.As(err, &pme) {
		if len(pme) == 0 {
			return false
		}
		for _, rowErr := range pme {
			if !isRetryable(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}
