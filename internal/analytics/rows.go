package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mesa-backend/pkg/outbox"
	"github.com/angelmondragon/mesa-backend/pkg/outbox/payloads"
)

// OrderEventRow is one row of the order_events table. Money is stored in
// integer cents so warehouse sums never drift.
type OrderEventRow struct {
	EventID        string              `bigquery:"event_id"`
	EventType      string              `bigquery:"event_type"`
	OccurredAt     time.Time           `bigquery:"occurred_at"`
	OrderID        string              `bigquery:"order_id"`
	UserID         bigquery.NullString `bigquery:"user_id"`
	PromotionID    bigquery.NullString `bigquery:"promotion_id"`
	Status         string              `bigquery:"status"`
	PreviousStatus bigquery.NullString `bigquery:"previous_status"`
	Reason         bigquery.NullString `bigquery:"reason"`
	ItemCount      bigquery.NullInt64  `bigquery:"item_count"`
	SubtotalCents  bigquery.NullInt64  `bigquery:"subtotal_cents"`
	DiscountCents  bigquery.NullInt64  `bigquery:"discount_cents"`
	TotalCents     bigquery.NullInt64  `bigquery:"total_cents"`
	ActorRole      bigquery.NullString `bigquery:"actor_role"`
	ActorSystem    bigquery.NullString `bigquery:"actor_system"`
	Payload        bigquery.NullJSON   `bigquery:"payload"`
}

// BookingEventRow is one row of the booking_events table.
type BookingEventRow struct {
	EventID        string                 `bigquery:"event_id"`
	EventType      string                 `bigquery:"event_type"`
	OccurredAt     time.Time              `bigquery:"occurred_at"`
	BookingID      string                 `bigquery:"booking_id"`
	UserID         bigquery.NullString    `bigquery:"user_id"`
	TableID        bigquery.NullString    `bigquery:"table_id"`
	PartySize      bigquery.NullInt64     `bigquery:"party_size"`
	ReservedFor    bigquery.NullTimestamp `bigquery:"reserved_for"`
	Status         string                 `bigquery:"status"`
	PreviousStatus bigquery.NullString    `bigquery:"previous_status"`
	ActorRole      bigquery.NullString    `bigquery:"actor_role"`
	ActorSystem    bigquery.NullString    `bigquery:"actor_system"`
	Payload        bigquery.NullJSON      `bigquery:"payload"`
}

func orderCreatedRow(env Envelope) (OrderEventRow, error) {
	var event payloads.OrderCreatedEvent
	if err := decodePayload(env, &event); err != nil {
		return OrderEventRow{}, err
	}
	row := orderBase(env, event.OrderID)
	row.UserID = nullUUID(event.UserID)
	row.PromotionID = nullUUID(event.PromotionID)
	row.Status = string(event.Status)
	row.ItemCount = bigquery.NullInt64{Int64: int64(event.ItemCount), Valid: true}
	row.SubtotalCents = cents(event.Subtotal)
	row.DiscountCents = cents(event.Discount)
	row.TotalCents = cents(event.Total)
	return row, nil
}

func orderStatusChangedRow(env Envelope) (OrderEventRow, error) {
	var event payloads.OrderStatusChangedEvent
	if err := decodePayload(env, &event); err != nil {
		return OrderEventRow{}, err
	}
	row := orderBase(env, event.OrderID)
	row.Status = string(event.To)
	row.PreviousStatus = nullString(string(event.From))
	row.Reason = nullString(event.Reason)
	return row, nil
}

func bookingCreatedRow(env Envelope) (BookingEventRow, error) {
	var event payloads.BookingCreatedEvent
	if err := decodePayload(env, &event); err != nil {
		return BookingEventRow{}, err
	}
	row := bookingBase(env, event.BookingID)
	row.UserID = nullUUID(event.UserID)
	row.TableID = nullUUID(event.TableID)
	row.PartySize = bigquery.NullInt64{Int64: int64(event.PartySize), Valid: true}
	if !event.ReservedFor.IsZero() {
		row.ReservedFor = bigquery.NullTimestamp{Timestamp: event.ReservedFor.UTC(), Valid: true}
	}
	row.Status = string(event.Status)
	return row, nil
}

func bookingStatusChangedRow(env Envelope) (BookingEventRow, error) {
	var event payloads.BookingStatusChangedEvent
	if err := decodePayload(env, &event); err != nil {
		return BookingEventRow{}, err
	}
	row := bookingBase(env, event.BookingID)
	row.Status = string(event.To)
	row.PreviousStatus = nullString(string(event.From))
	return row, nil
}

func orderBase(env Envelope, orderID uuid.UUID) OrderEventRow {
	role, system := actorColumns(env.Actor)
	return OrderEventRow{
		EventID:     env.EventID.String(),
		EventType:   string(env.EventType),
		OccurredAt:  env.OccurredAt,
		OrderID:     orderID.String(),
		ActorRole:   role,
		ActorSystem: system,
		Payload:     EncodeJSON(env.Payload),
	}
}

func bookingBase(env Envelope, bookingID uuid.UUID) BookingEventRow {
	role, system := actorColumns(env.Actor)
	return BookingEventRow{
		EventID:     env.EventID.String(),
		EventType:   string(env.EventType),
		OccurredAt:  env.OccurredAt,
		BookingID:   bookingID.String(),
		ActorRole:   role,
		ActorSystem: system,
		Payload:     EncodeJSON(env.Payload),
	}
}

// decodePayload rejects payloads whose aggregate id disagrees with the
// message attribute, which would put the row under the wrong entity.
func decodePayload[T any](env Envelope, dst *T) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrInvalidEnvelope, env.EventType, err)
	}
	var ids struct {
		OrderID   uuid.UUID `json:"order_id"`
		BookingID uuid.UUID `json:"booking_id"`
	}
	_ = json.Unmarshal(env.Payload, &ids)
	id := ids.OrderID
	if id == uuid.Nil {
		id = ids.BookingID
	}
	if id == uuid.Nil {
		return fmt.Errorf("%w: %s payload has no aggregate id", ErrInvalidEnvelope, env.EventType)
	}
	if env.AggregateID != "" && env.AggregateID != id.String() {
		return fmt.Errorf("%w: aggregate_id %s does not match payload %s", ErrInvalidEnvelope, env.AggregateID, id)
	}
	return nil
}

func actorColumns(actor *outbox.ActorRef) (bigquery.NullString, bigquery.NullString) {
	if actor == nil {
		return bigquery.NullString{}, bigquery.NullString{}
	}
	return nullString(actor.Role), nullString(actor.System)
}

func cents(d decimal.Decimal) bigquery.NullInt64 {
	return bigquery.NullInt64{Int64: d.Shift(2).Round(0).IntPart(), Valid: true}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullUUID(id *uuid.UUID) bigquery.NullString {
	if id == nil || *id == uuid.Nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: id.String(), Valid: true}
}

// EncodeJSON stores the raw event payload in a JSON column.
func EncodeJSON(raw json.RawMessage) bigquery.NullJSON {
	if len(raw) == 0 {
		return bigquery.NullJSON{}
	}
	return bigquery.NullJSON{JSONVal: string(raw), Valid: true}
}
