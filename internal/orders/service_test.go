package orders

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/mesa-backend/internal/menu"
	"github.com/angelmondragon/mesa-backend/internal/promotions"
	"github.com/angelmondragon/mesa-backend/pkg/db"
	"github.com/angelmondragon/mesa-backend/pkg/db/dbtest"
	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	"github.com/angelmondragon/mesa-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
	"github.com/angelmondragon/mesa-backend/pkg/metrics"
	"github.com/angelmondragon/mesa-backend/pkg/outbox"
	"github.com/angelmondragon/mesa-backend/pkg/pagination"
)

type stubUsers map[uuid.UUID]models.User

func (s stubUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := s[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &user, nil
}

type harness struct {
	client *db.Client
	svc    Service
	reg    *prometheus.Registry
	userID uuid.UUID
	burger models.MenuItem
	fries  models.MenuItem
	promo  models.Promotion
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Open(t)
	ctx := context.Background()

	menuRepo := menu.NewRepository(client.DB())
	promoRepo := promotions.NewRepository(client.DB())

	burger, err := menuRepo.Create(ctx, &models.MenuItem{Name: "Burger", Category: enums.MenuCategoryMain, Price: dec("50"), IsAvailable: true})
	require.NoError(t, err)
	fries, err := menuRepo.Create(ctx, &models.MenuItem{Name: "Fries", Category: enums.MenuCategorySide, Price: dec("30"), IsAvailable: true})
	require.NoError(t, err)
	promo, err := promoRepo.Create(ctx, &models.Promotion{Code: "TEN", Description: "10% off", DiscountPercentage: dec("10"), MinimumOrder: dec("100"), AutoApply: true, IsActive: true})
	require.NoError(t, err)

	validator, err := NewValidator(menuRepo, promoRepo)
	require.NoError(t, err)

	userID := uuid.New()
	reg := prometheus.NewRegistry()
	orderMetrics := metrics.NewOrderMetrics(reg)
	h := &harness{
		client: client,
		reg:    reg,
		userID: userID,
		burger: *burger,
		fries:  *fries,
		promo:  *promo,
		now:    time.Date(2026, 7, 1, 18, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(client.DB()),
		Tx:        client,
		Outbox:    outbox.NewService(outbox.NewRepository(client.DB()), logger.Nop()),
		Validator: validator,
		Users:     stubUsers{userID: {ID: userID, Email: "ana@example.com", Role: enums.UserRoleCustomer}},
		Metrics:   orderMetrics,
		Logger:    logger.Nop(),
		Now:       func() time.Time { return h.now },
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) referenceInput() CreateOrderInput {
	promoID := h.promo.ID
	userID := h.userID
	return CreateOrderInput{
		UserID: &userID,
		Items: []ItemInput{
			{MenuItemID: h.burger.ID, Quantity: 2, Price: dec("50")},
			{MenuItemID: h.fries.ID, Quantity: 1, Price: dec("30")},
		},
		PromotionID: &promoID,
		Subtotal:    dec("130"),
		Discount:    dec("13"),
		Total:       dec("117"),
	}
}

func (h *harness) countRows(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.client.DB().Model(model).Count(&n).Error)
	return n
}

func TestCreatePersistsReferenceOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.svc.Create(ctx, h.referenceInput())
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, created.Status)
	assert.True(t, dec("13").Equal(created.Discount))
	assert.True(t, dec("117").Equal(created.Total))
	require.Len(t, created.Items, 2)

	stored, err := h.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, dec("130").Equal(stored.Subtotal))
	assert.True(t, dec("117").Equal(stored.Total))
	assert.Equal(t, h.promo.ID, *stored.PromotionID)
	require.Len(t, stored.Items, 2)
	names := []string{stored.Items[0].Name, stored.Items[1].Name}
	assert.ElementsMatch(t, []string{"Burger", "Fries"}, names)

	var events []models.OutboxEvent
	require.NoError(t, h.client.DB().Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)
	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	assert.Contains(t, string(envelope.Data), created.ID.String())

	count, err := testutil.GatherAndCount(h.reg, "mesa_orders_created_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateRejectionWritesNothing(t *testing.T) {
	h := newHarness(t)
	in := h.referenceInput()
	in.Total = dec("118")

	_, err := h.svc.Create(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, ReasonTotalMismatch, RejectionReason(err))
	expected := `
# HELP mesa_orders_rejected_total Order submissions rejected by integrity validation.
# TYPE mesa_orders_rejected_total counter
mesa_orders_rejected_total{reason="total_mismatch"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(h.reg, strings.NewReader(expected), "mesa_orders_rejected_total"))
	assert.Zero(t, h.countRows(t, &models.Order{}))
	assert.Zero(t, h.countRows(t, &models.OrderItem{}))
	assert.Zero(t, h.countRows(t, &models.OutboxEvent{}))
}

func TestCreateRollsBackWhenItemInsertFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := h.referenceInput()
	in.PromotionID = nil
	in.Discount = decimal.Zero
	in.Total = dec("130")

	require.NoError(t, h.client.DB().Exec("DROP TABLE order_items").Error)

	_, err := h.svc.Create(ctx, in)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInternal))
	assert.Zero(t, h.countRows(t, &models.Order{}))
	assert.Zero(t, h.countRows(t, &models.OutboxEvent{}))
}

func TestCreateCustomerChecks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	in := h.referenceInput()
	ghost := uuid.New()
	in.UserID = &ghost
	_, err := h.svc.Create(ctx, in)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	in = h.referenceInput()
	in.UserID = nil
	_, err = h.svc.Create(ctx, in)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	in.Guest = &GuestContact{Name: " Lu ", Email: " LU@Example.com "}
	created, err := h.svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Nil(t, created.UserID)
	assert.Equal(t, "Lu", *created.GuestName)
	assert.Equal(t, "lu@example.com", *created.GuestEmail)
}

func TestStatusLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.svc.Create(ctx, h.referenceInput())
	require.NoError(t, err)

	for _, next := range []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusPreparing, enums.OrderStatusReady, enums.OrderStatusCompleted} {
		updated, err := h.svc.UpdateStatus(ctx, StatusChangeInput{OrderID: created.ID, Status: next})
		require.NoError(t, err)
		assert.Equal(t, next, updated.Status)
	}

	final, err := h.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, final.ConfirmedAt)
	require.NotNil(t, final.CompletedAt)
	assert.True(t, h.now.Equal(*final.CompletedAt))
	assert.True(t, dec("117").Equal(final.Total))

	_, err = h.svc.UpdateStatus(ctx, StatusChangeInput{OrderID: created.ID, Status: enums.OrderStatusCancelled})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	assert.Equal(t, int64(5), h.countRows(t, &models.OutboxEvent{}))
}

func TestStatusSkippingStepsIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.svc.Create(ctx, h.referenceInput())
	require.NoError(t, err)

	_, err = h.svc.UpdateStatus(ctx, StatusChangeInput{OrderID: created.ID, Status: enums.OrderStatusReady})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.UpdateStatus(ctx, StatusChangeInput{OrderID: uuid.New(), Status: enums.OrderStatusConfirmed})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.UpdateStatus(ctx, StatusChangeInput{OrderID: created.ID, Status: "lost"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestCancelForUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.svc.Create(ctx, h.referenceInput())
	require.NoError(t, err)

	_, err = h.svc.CancelForUser(ctx, uuid.New(), created.ID, "")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	cancelled, err := h.svc.CancelForUser(ctx, h.userID, created.ID, " changed my mind ")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "changed my mind", *cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)
}

func TestCancelAfterPreparingIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.svc.Create(ctx, h.referenceInput())
	require.NoError(t, err)
	for _, next := range []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusPreparing} {
		_, err = h.svc.UpdateStatus(ctx, StatusChangeInput{OrderID: created.ID, Status: next})
		require.NoError(t, err)
	}

	_, err = h.svc.CancelForUser(ctx, h.userID, created.ID, "")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestListForUserAndAdminFilters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.Create(ctx, h.referenceInput())
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := h.svc.Create(ctx, h.referenceInput())
	require.NoError(t, err)
	_, err = h.svc.UpdateStatus(ctx, StatusChangeInput{OrderID: first.ID, Status: enums.OrderStatusConfirmed})
	require.NoError(t, err)

	page, err := h.svc.ListForUser(ctx, h.userID, nil, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, second.ID, page.Items[0].ID)
	assert.NotEmpty(t, page.NextCursor)

	other, err := h.svc.ListForUser(ctx, uuid.New(), nil, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, other.Items)

	confirmed := enums.OrderStatusConfirmed
	page, err = h.svc.List(ctx, ListFilters{Status: &confirmed}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, first.ID, page.Items[0].ID)
	assert.Len(t, page.Items[0].Items, 2)

	bad := enums.OrderStatus("lost")
	_, err = h.svc.List(ctx, ListFilters{Status: &bad}, pagination.Params{})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestExpireStalePending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stale, err := h.svc.Create(ctx, h.referenceInput())
	require.NoError(t, err)
	confirmed, err := h.svc.Create(ctx, h.referenceInput())
	require.NoError(t, err)
	_, err = h.svc.UpdateStatus(ctx, StatusChangeInput{OrderID: confirmed.ID, Status: enums.OrderStatusConfirmed})
	require.NoError(t, err)

	old := time.Now().UTC().Add(-3 * time.Hour)
	require.NoError(t, h.client.DB().Model(&models.Order{}).Where("1 = 1").Update("created_at", old).Error)

	expired, err := h.svc.ExpireStalePending(ctx, time.Now().UTC().Add(-time.Hour), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := h.svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, got.Status)

	got, err = h.svc.Get(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)
}

