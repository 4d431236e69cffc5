package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	"github.com/angelmondragon/mesa-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
	"github.com/angelmondragon/mesa-backend/pkg/metrics"
	"github.com/angelmondragon/mesa-backend/pkg/outbox"
	"github.com/angelmondragon/mesa-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/mesa-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// UserLookup returns gorm.ErrRecordNotFound for unknown ids.
type UserLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Service is the order lifecycle: integrity-checked creation, customer
// reads and cancellation, and back-office status changes.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*OrderDTO, error)

	ListForUser(ctx context.Context, userID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (*pagination.Page[OrderDTO], error)
	GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	CancelForUser(ctx context.Context, userID, orderID uuid.UUID, reason string) (*OrderDTO, error)

	List(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[OrderDTO], error)
	Get(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error)
	UpdateStatus(ctx context.Context, input StatusChangeInput) (*OrderDTO, error)

	// ExpireStalePending cancels pending orders created before cutoff.
	ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// StatusChangeInput moves an order along its lifecycle.
type StatusChangeInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	Reason  string
	Actor   *outbox.ActorRef
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Validator *Validator
	Users     UserLookup
	Metrics   *metrics.OrderMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	validator *Validator
	users     UserLookup
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Validator == nil {
		return nil, fmt.Errorf("order validator required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user lookup required")
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
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		validator: params.Validator,
		users:     params.Users,
		metrics:   params.Metrics,
		logg:      logg,
		now:       now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*OrderDTO, error) {
	if err := s.checkCustomer(ctx, &input); err != nil {
		return nil, err
	}

	validated, err := s.validator.Validate(ctx, input)
	if err != nil {
		if reason := RejectionReason(err); reason != "" {
			s.metrics.IncRejected(reason)
			ctx = s.logg.WithField(ctx, "reason", reason)
			s.logg.Info(ctx, "order rejected")
		}
		return nil, err
	}

	order := buildOrder(validated)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         customerActor(order.UserID),
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				UserID:      order.UserID,
				PromotionID: order.PromotionID,
				Status:      order.Status,
				ItemCount:   len(order.Items),
				Subtotal:    order.Subtotal,
				Discount:    order.Discount,
				Total:       order.Total,
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "order persistence failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create order")
	}

	s.metrics.IncCreated()
	ctx = s.logg.WithField(ctx, "order_id", order.ID.String())
	s.logg.Info(ctx, "order created")

	dto := FromModel(*order)
	return &dto, nil
}

// checkCustomer requires either an existing user or complete guest contact.
func (s *service) checkCustomer(ctx context.Context, input *CreateOrderInput) error {
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
		return pkgerrors.New(pkgerrors.CodeValidation, "guest contact is required when ordering without an account")
	}
	input.Guest.Name = strings.TrimSpace(input.Guest.Name)
	input.Guest.Email = strings.ToLower(strings.TrimSpace(input.Guest.Email))
	if input.Guest.Name == "" || input.Guest.Email == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "guest name and email are required")
	}
	return nil
}

// buildOrder snapshots the submitted values. Names come from the catalog;
// prices and totals are stored exactly as submitted.
func buildOrder(v *ValidatedOrder) *models.Order {
	in := v.Input
	order := &models.Order{
		ID:       uuid.New(),
		UserID:   in.UserID,
		Status:   enums.OrderStatusPending,
		Subtotal: in.Subtotal,
		Discount: in.Discount,
		Total:    in.Total,
		Notes:    trimmedOrNil(in.Notes),
	}
	if v.Promotion != nil {
		id := v.Promotion.ID
		order.PromotionID = &id
	}
	if in.Guest != nil {
		name, email := in.Guest.Name, in.Guest.Email
		order.GuestName = &name
		order.GuestEmail = &email
		order.GuestPhone = trimmedOrNil(in.Guest.Phone)
	}

	order.Items = make([]models.OrderItem, 0, len(in.Items))
	for _, item := range in.Items {
		order.Items = append(order.Items, models.OrderItem{
			ID:         uuid.New(),
			OrderID:    order.ID,
			MenuItemID: item.MenuItemID,
			Name:       v.MenuItems[item.MenuItemID].Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.Price,
			LineTotal:  item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}
	return order
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (*pagination.Page[OrderDTO], error) {
	return s.List(ctx, ListFilters{UserID: &userID, Status: status}, params)
}

func (s *service) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID == nil || *order.UserID != userID {
		return nil, notFound(orderID)
	}
	dto := FromModel(*order)
	return &dto, nil
}

func (s *service) CancelForUser(ctx context.Context, userID, orderID uuid.UUID, reason string) (*OrderDTO, error) {
	if _, err := s.GetForUser(ctx, userID, orderID); err != nil {
		return nil, err
	}
	actor := &outbox.ActorRef{UserID: &userID, Role: string(enums.UserRoleCustomer)}
	return s.UpdateStatus(ctx, StatusChangeInput{
		OrderID: orderID,
		Status:  enums.OrderStatusCancelled,
		Reason:  reason,
		Actor:   actor,
	})
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*pagination.Page[OrderDTO], error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", *filters.Status)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filters, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	rows, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	items := make([]OrderDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, FromModel(row))
	}
	return &pagination.Page[OrderDTO]{Items: items, NextCursor: next}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	dto := FromModel(*order)
	return &dto, nil
}

func (s *service) UpdateStatus(ctx context.Context, input StatusChangeInput) (*OrderDTO, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", input.Status)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.transition(ctx, tx, input)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	return s.Get(ctx, input.OrderID)
}

// transition applies one status change and queues its event on tx.
func (s *service) transition(ctx context.Context, tx *gorm.DB, input StatusChangeInput) error {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByIDForUpdate(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(input.OrderID)
		}
		return err
	}

	from := order.Status
	if !from.CanTransitionTo(input.Status) {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order cannot move from %s to %s", from, input.Status).
			WithDetails(map[string]any{"from": from, "to": input.Status})
	}

	now := s.now().UTC()
	order.Status = input.Status
	switch input.Status {
	case enums.OrderStatusConfirmed:
		order.ConfirmedAt = &now
	case enums.OrderStatusCompleted:
		order.CompletedAt = &now
	case enums.OrderStatusCancelled:
		order.CancelledAt = &now
		if reason := strings.TrimSpace(input.Reason); reason != "" {
			order.CancelReason = &reason
		}
	}
	if err := repo.UpdateStatus(ctx, order); err != nil {
		return err
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         input.Actor,
		Data: payloads.OrderStatusChangedEvent{
			OrderID: order.ID,
			From:    from,
			To:      input.Status,
			Reason:  strings.TrimSpace(input.Reason),
		},
	})
}

func (s *service) ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	stale, err := s.repo.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale orders: %w", err)
	}

	var (
		expired int
		errs    error
	)
	for _, order := range stale {
		input := StatusChangeInput{
			OrderID: order.ID,
			Status:  enums.OrderStatusCancelled,
			Reason:  "expired while pending",
			Actor:   outbox.SystemActor("order-expiry"),
		}
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.transition(ctx, tx, input)
		})
		if err != nil {
			// Someone else moved it on since the scan.
			if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		expired++
	}
	return expired, errs
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func notFound(id uuid.UUID) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found", id)
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
