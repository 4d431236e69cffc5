package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateBooking OutboxAggregateType = "booking"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder || a == AggregateBooking
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCreated         OutboxEventType = "order_created"
	EventOrderStatusChanged   OutboxEventType = "order_status_changed"
	EventBookingCreated       OutboxEventType = "booking_created"
	EventBookingStatusChanged OutboxEventType = "booking_status_changed"
)

// eventAggregates pins every event type to the aggregate it describes.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderCreated:         AggregateOrder,
	EventOrderStatusChanged:   AggregateOrder,
	EventBookingCreated:       AggregateBooking,
	EventBookingStatusChanged: AggregateBooking,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate e belongs to, or "" for unknown types.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

// OutboxDLQErrorReason records why the publisher gave up on a row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
