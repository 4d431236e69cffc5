package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/mesa-backend/pkg/config"
	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	"github.com/angelmondragon/mesa-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
	"github.com/angelmondragon/mesa-backend/pkg/outbox"
	"github.com/angelmondragon/mesa-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/mesa-backend/pkg/pagination"
	"github.com/angelmondragon/mesa-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ScheduleSource supplies the venue's opening hours.
type ScheduleSource interface {
	Schedule(ctx context.Context) (types.OpeningHours, *time.Location, error)
}

// UserLookup returns gorm.ErrRecordNotFound for unknown ids.
type UserLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service manages tables, reservations and their lifecycle.
type Service interface {
	ListTables(ctx context.Context, activeOnly bool) ([]TableDTO, error)
	CreateTable(ctx context.Context, input CreateTableInput) (*TableDTO, error)
	UpdateTable(ctx context.Context, id uuid.UUID, input UpdateTableInput) (*TableDTO, error)
	DeleteTable(ctx context.Context, id uuid.UUID) error

	Create(ctx context.Context, input CreateBookingInput) (*BookingDTO, error)
	Availability(ctx context.Context, date string, partySize int) ([]Slot, error)

	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[BookingDTO], error)
	GetForUser(ctx context.Context, userID, bookingID uuid.UUID) (*BookingDTO, error)
	CancelForUser(ctx context.Context, userID, bookingID uuid.UUID) (*BookingDTO, error)

	List(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[BookingDTO], error)
	Get(ctx context.Context, bookingID uuid.UUID) (*BookingDTO, error)
	UpdateStatus(ctx context.Context, input StatusChangeInput) (*BookingDTO, error)
	AssignTable(ctx context.Context, bookingID, tableID uuid.UUID) (*BookingDTO, error)
	CountByStatusOn(ctx context.Context, day time.Time) (map[enums.BookingStatus]int64, error)

	// SweepNoShows marks confirmed bookings as no_show once their start plus
	// the grace period has passed.
	SweepNoShows(ctx context.Context, now time.Time, limit int) (int, error)
	// CompleteFinished closes seated bookings whose slot has ended.
	CompleteFinished(ctx context.Context, now time.Time, limit int) (int, error)
}

type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Schedule ScheduleSource
	Users    UserLookup
	Config   config.BookingConfig
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	schedule ScheduleSource
	users    UserLookup
	cfg      config.BookingConfig
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Schedule == nil {
		return nil, fmt.Errorf("schedule source required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user lookup required")
	}
	if params.Config.SlotMinutes <= 0 || params.Config.MaxPartySize <= 0 || params.Config.SlotStepMinute <= 0 {
		return nil, fmt.Errorf("booking config incomplete")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		schedule: params.Schedule,
		users:    params.Users,
		cfg:      params.Config,
		logg:     logg,
		now:      now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateBookingInput) (*BookingDTO, error) {
	if err := s.checkCustomer(ctx, &input); err != nil {
		return nil, err
	}
	if input.PartySize < 1 || input.PartySize > s.cfg.MaxPartySize {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "party_size must be between 1 and %d", s.cfg.MaxPartySize)
	}

	now := s.now().UTC()
	start := input.ReservedFor.UTC().Truncate(time.Minute)
	if start.Before(now.Add(s.cfg.MinLeadTime)) {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "reserved_for must be at least %s from now", s.cfg.MinLeadTime)
	}
	if s.cfg.Window > 0 && start.After(now.Add(s.cfg.Window)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reserved_for is beyond the booking window")
	}
	end := start.Add(s.cfg.SlotDuration())

	hours, loc, err := s.schedule.Schedule(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load opening hours")
	}
	if !hours.Covers(start.In(loc), end.In(loc)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation falls outside opening hours")
	}

	booking := &models.Booking{
		ID:              uuid.New(),
		UserID:          input.UserID,
		PartySize:       input.PartySize,
		ReservedFor:     start,
		DurationMinutes: s.cfg.SlotMinutes,
		Status:          enums.BookingStatusPending,
		Notes:           trimmedOrNil(input.Notes),
	}
	if input.Guest != nil {
		name, email := input.Guest.Name, input.Guest.Email
		booking.GuestName = &name
		booking.GuestEmail = &email
		booking.GuestPhone = trimmedOrNil(input.Guest.Phone)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		tables, err := repo.LockCandidateTables(ctx, input.PartySize)
		if err != nil {
			return err
		}
		holding, err := repo.ListHolding(ctx, start, end)
		if err != nil {
			return err
		}
		table := pickTable(tables, holding, uuid.Nil)
		if table == nil {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "no table available for a party of %d at that time", input.PartySize)
		}
		booking.TableID = &table.ID

		if err := repo.Create(ctx, booking); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingCreated,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Actor:         customerActor(booking.UserID),
			Data: payloads.BookingCreatedEvent{
				BookingID:   booking.ID,
				UserID:      booking.UserID,
				TableID:     booking.TableID,
				PartySize:   booking.PartySize,
				ReservedFor: booking.ReservedFor,
				Status:      booking.Status,
			},
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		s.logg.Error(ctx, "booking persistence failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create booking")
	}

	ctx = s.logg.WithField(ctx, "booking_id", booking.ID.String())
	s.logg.Info(ctx, "booking created")
	return s.Get(ctx, booking.ID)
}

func (s *service) checkCustomer(ctx context.Context, input *CreateBookingInput) error {
	if input.UserID != nil {
		if _, err := s.users.FindByID(ctx, *input.UserID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Newf(pkgerrors.CodeNotFound, "user %s not found", *input.UserID)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
		}
		input.Guest = nil
		return nil
	}
	if input.Guest == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "guest contact is required when booking without an account")
	}
	input.Guest.Name = strings.TrimSpace(input.Guest.Name)
	input.Guest.Email = strings.ToLower(strings.TrimSpace(input.Guest.Email))
	if input.Guest.Name == "" || input.Guest.Email == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "guest name and email are required")
	}
	return nil
}

// pickTable returns the first table, in the given order, that no holding
// booking other than exclude occupies.
func pickTable(tables []models.RestaurantTable, holding []models.Booking, exclude uuid.UUID) *models.RestaurantTable {
	busy := make(map[uuid.UUID]struct{}, len(holding))
	for _, b := range holding {
		if b.ID == exclude || b.TableID == nil {
			continue
		}
		busy[*b.TableID] = struct{}{}
	}
	for i := range tables {
		if _, taken := busy[tables[i].ID]; !taken {
			return &tables[i]
		}
	}
	return nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pagination.Page[BookingDTO], error) {
	return s.list(ctx, ListQuery{UserID: &userID}, params)
}

func (s *service) GetForUser(ctx context.Context, userID, bookingID uuid.UUID) (*BookingDTO, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID == nil || *booking.UserID != userID {
		return nil, notFound(bookingID)
	}
	dto := FromModel(*booking)
	return &dto, nil
}

func (s *service) CancelForUser(ctx context.Context, userID, bookingID uuid.UUID) (*BookingDTO, error) {
	if _, err := s.GetForUser(ctx, userID, bookingID); err != nil {
		return nil, err
	}
	return s.UpdateStatus(ctx, StatusChangeInput{
		BookingID: bookingID,
		Status:    enums.BookingStatusCancelled,
		Role:      enums.UserRoleCustomer,
		ActorID:   &userID,
	})
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[BookingDTO], error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", *filters.Status)
	}
	query := ListQuery{UserID: filters.UserID, Status: filters.Status}
	if filters.Date != nil {
		_, loc, err := s.schedule.Schedule(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load schedule")
		}
		day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(*filters.Date), loc)
		if err != nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "date must be %s", dateLayout)
		}
		from, to := day.UTC(), day.AddDate(0, 0, 1).UTC()
		query.From, query.To = &from, &to
	}
	return s.list(ctx, query, params)
}

func (s *service) list(ctx context.Context, query ListQuery, params pagination.Params) (*pagination.Page[BookingDTO], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, query, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list bookings")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(b models.Booking) pagination.Cursor {
		return pagination.Cursor{CreatedAt: b.CreatedAt, ID: b.ID}
	})
	items := make([]BookingDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, FromModel(row))
	}
	return &pagination.Page[BookingDTO]{Items: items, NextCursor: next}, nil
}

func (s *service) Get(ctx context.Context, bookingID uuid.UUID) (*BookingDTO, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	dto := FromModel(*booking)
	return &dto, nil
}

func (s *service) UpdateStatus(ctx context.Context, input StatusChangeInput) (*BookingDTO, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", input.Status)
	}
	actor := &outbox.ActorRef{UserID: input.ActorID, Role: string(input.Role)}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.transition(ctx, tx, input.BookingID, input.Status, actor)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update booking status")
	}
	return s.Get(ctx, input.BookingID)
}

func (s *service) transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, to enums.BookingStatus, actor *outbox.ActorRef) error {
	repo := s.repo.WithTx(tx)
	booking, err := repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(id)
		}
		return err
	}

	from := booking.Status
	if !from.CanTransitionTo(to) {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "booking cannot move from %s to %s", from, to).
			WithDetails(map[string]any{"from": from, "to": to})
	}
	booking.Status = to
	if to == enums.BookingStatusCancelled {
		now := s.now().UTC()
		booking.CancelledAt = &now
	}
	if err := repo.UpdateStatus(ctx, booking); err != nil {
		return err
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBookingStatusChanged,
		AggregateType: enums.AggregateBooking,
		AggregateID:   booking.ID,
		Actor:         actor,
		Data: payloads.BookingStatusChangedEvent{
			BookingID: booking.ID,
			From:      from,
			To:        to,
		},
	})
}

func (s *service) AssignTable(ctx context.Context, bookingID, tableID uuid.UUID) (*BookingDTO, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := repo.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(bookingID)
			}
			return err
		}
		if booking.Status.IsTerminal() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "booking is already %s", booking.Status)
		}

		table, err := repo.FindTable(ctx, tableID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return tableNotFound(tableID)
			}
			return err
		}
		if !table.IsActive {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "table %s is not active", table.Label)
		}
		if table.Capacity < booking.PartySize {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "table %s seats %d, party is %d", table.Label, table.Capacity, booking.PartySize)
		}

		holding, err := repo.ListHolding(ctx, booking.ReservedFor, booking.EndsAt())
		if err != nil {
			return err
		}
		if pickTable([]models.RestaurantTable{*table}, holding, booking.ID) == nil {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "table %s is taken at that time", table.Label)
		}
		return repo.UpdateTable(ctx, booking.ID, table.ID)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assign table")
	}
	return s.Get(ctx, bookingID)
}

func (s *service) CountByStatusOn(ctx context.Context, day time.Time) (map[enums.BookingStatus]int64, error) {
	from, to, err := s.dayBounds(ctx, day)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountByStatusBetween(ctx, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count bookings")
	}
	return counts, nil
}

func (s *service) SweepNoShows(ctx context.Context, now time.Time, limit int) (int, error) {
	cutoff := now.Add(-s.cfg.NoShowGrace)
	due, err := s.repo.ListByStatusStartedBefore(ctx, enums.BookingStatusConfirmed, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list overdue bookings: %w", err)
	}
	return s.applyAll(ctx, due, enums.BookingStatusNoShow, "booking-no-show")
}

func (s *service) CompleteFinished(ctx context.Context, now time.Time, limit int) (int, error) {
	seated, err := s.repo.ListByStatusStartedBefore(ctx, enums.BookingStatusSeated, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list seated bookings: %w", err)
	}
	finished := seated[:0]
	for _, b := range seated {
		if !b.EndsAt().After(now) {
			finished = append(finished, b)
		}
	}
	return s.applyAll(ctx, finished, enums.BookingStatusCompleted, "booking-completion")
}

func (s *service) applyAll(ctx context.Context, rows []models.Booking, to enums.BookingStatus, system string) (int, error) {
	var (
		applied int
		errs    error
	)
	for _, booking := range rows {
		id := booking.ID
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.transition(ctx, tx, id, to, outbox.SystemActor(system))
		})
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("booking %s -> %s: %w", id, to, err))
			continue
		}
		applied++
	}
	return applied, errs
}

// dayBounds returns the UTC instants that start and end day's calendar date in
// the venue's timezone.
func (s *service) dayBounds(ctx context.Context, day time.Time) (time.Time, time.Time, error) {
	_, loc, err := s.schedule.Schedule(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load schedule")
	}
	y, m, d := day.In(loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return from.UTC(), from.AddDate(0, 0, 1).UTC(), nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load booking")
	}
	return booking, nil
}

func notFound(id uuid.UUID) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "booking %s not found", id)
}

func tableNotFound(id uuid.UUID) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "table %s not found", id)
}

func customerActor(userID *uuid.UUID) *outbox.ActorRef {
	if userID == nil {
		return &outbox.ActorRef{Role: "guest"}
	}
	return &outbox.ActorRef{UserID: userID, Role: string(enums.UserRoleCustomer)}
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
