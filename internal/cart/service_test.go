package cart

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/mesa-backend/internal/orders"
	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
	"github.com/angelmondragon/mesa-backend/pkg/pricing"
)

type stubMenu map[uuid.UUID]models.MenuItem

func (s stubMenu) FindByID(_ context.Context, id uuid.UUID) (*models.MenuItem, error) {
	item, ok := s[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &item, nil
}

type stubPromotions struct {
	promos []pricing.Promotion
}

func (s *stubPromotions) ActiveAutoApply(context.Context) ([]pricing.Promotion, error) {
	return s.promos, nil
}

type stubPlacer struct {
	got *orders.CreateOrderInput
	err error
}

func (s *stubPlacer) Create(_ context.Context, input orders.CreateOrderInput) (*orders.OrderDTO, error) {
	s.got = &input
	if s.err != nil {
		return nil, s.err
	}
	return &orders.OrderDTO{ID: uuid.New(), Total: input.Total}, nil
}

type cartHarness struct {
	svc     Service
	kv      *fakeKV
	promos  *stubPromotions
	placer  *stubPlacer
	burger  models.MenuItem
	fries   models.MenuItem
	soldOut models.MenuItem
}

func newCartHarness(t *testing.T) *cartHarness {
	t.Helper()
	h := &cartHarness{
		kv:      newFakeKV(),
		promos:  &stubPromotions{},
		placer:  &stubPlacer{},
		burger:  models.MenuItem{ID: uuid.New(), Name: "Burger", Price: dec("50"), IsAvailable: true},
		fries:   models.MenuItem{ID: uuid.New(), Name: "Fries", Price: dec("30"), IsAvailable: true},
		soldOut: models.MenuItem{ID: uuid.New(), Name: "Oysters", Price: dec("25"), IsAvailable: false},
	}
	store, err := NewRedisStore(h.kv, time.Hour)
	require.NoError(t, err)
	menu := stubMenu{h.burger.ID: h.burger, h.fries.ID: h.fries, h.soldOut.ID: h.soldOut}
	svc, err := NewService(store, menu, h.promos, h.placer, nil)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func TestServiceAddTwiceGivesQuantityTwo(t *testing.T) {
	h := newCartHarness(t)
	ctx := context.Background()
	created, err := h.svc.Create(ctx, Owner{})
	require.NoError(t, err)

	_, err = h.svc.AddItem(ctx, Owner{}, created.ID, h.burger.ID, 1)
	require.NoError(t, err)
	got, err := h.svc.AddItem(ctx, Owner{}, created.ID, h.burger.ID, 1)
	require.NoError(t, err)

	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.True(t, dec("100").Equal(got.Subtotal))
}

func TestServiceQuantityZeroRemovesLine(t *testing.T) {
	h := newCartHarness(t)
	ctx := context.Background()
	created, err := h.svc.Create(ctx, Owner{})
	require.NoError(t, err)
	_, err = h.svc.AddItem(ctx, Owner{}, created.ID, h.burger.ID, 2)
	require.NoError(t, err)

	got, err := h.svc.SetQuantity(ctx, Owner{}, created.ID, h.burger.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	assert.True(t, got.Total.IsZero())

	_, err = h.svc.RemoveItem(ctx, Owner{}, created.ID, h.burger.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestServiceRejectsUnknownAndUnavailableItems(t *testing.T) {
	h := newCartHarness(t)
	ctx := context.Background()
	created, err := h.svc.Create(ctx, Owner{})
	require.NoError(t, err)

	_, err = h.svc.AddItem(ctx, Owner{}, created.ID, uuid.New(), 1)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.AddItem(ctx, Owner{}, created.ID, h.soldOut.ID, 1)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))

	_, err = h.svc.AddItem(ctx, Owner{}, created.ID, h.burger.ID, 0)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.AddItem(ctx, Owner{}, uuid.New(), h.burger.ID, 1)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestServicePicksUpNewPromotionsOnRefresh(t *testing.T) {
	h := newCartHarness(t)
	ctx := context.Background()
	created, err := h.svc.Create(ctx, Owner{})
	require.NoError(t, err)
	_, err = h.svc.AddItem(ctx, Owner{}, created.ID, h.burger.ID, 2)
	require.NoError(t, err)
	got, err := h.svc.AddItem(ctx, Owner{}, created.ID, h.fries.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, got.AppliedPromotion)

	promo := pricing.Promotion{ID: uuid.New(), DiscountPercentage: dec("10"), MinimumOrder: dec("100"), AutoApply: true}
	h.promos.promos = []pricing.Promotion{promo}

	got, err = h.svc.RefreshPromotions(ctx, Owner{}, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AppliedPromotion)
	assert.Equal(t, promo.ID, got.AppliedPromotion.ID)
	assert.True(t, dec("13").Equal(got.Discount))
	assert.True(t, dec("117").Equal(got.Total))
}

func TestServiceAccountCartsArePrivate(t *testing.T) {
	h := newCartHarness(t)
	ctx := context.Background()
	userID := uuid.New()
	owner := Owner{UserID: &userID}

	created, err := h.svc.Create(ctx, owner)
	require.NoError(t, err)

	_, err = h.svc.Get(ctx, Owner{}, created.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	other := uuid.New()
	_, err = h.svc.Get(ctx, Owner{UserID: &other}, created.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.Get(ctx, owner, created.ID)
	require.NoError(t, err)
}

func TestServiceCheckoutSubmitsCartTotals(t *testing.T) {
	h := newCartHarness(t)
	ctx := context.Background()
	promo := pricing.Promotion{ID: uuid.New(), DiscountPercentage: dec("10"), MinimumOrder: dec("100"), AutoApply: true}
	h.promos.promos = []pricing.Promotion{promo}
	userID := uuid.New()
	owner := Owner{UserID: &userID}

	created, err := h.svc.Create(ctx, owner)
	require.NoError(t, err)
	_, err = h.svc.AddItem(ctx, owner, created.ID, h.burger.ID, 2)
	require.NoError(t, err)
	_, err = h.svc.AddItem(ctx, owner, created.ID, h.fries.ID, 1)
	require.NoError(t, err)

	order, err := h.svc.Checkout(ctx, owner, created.ID, CheckoutInput{})
	require.NoError(t, err)
	assert.True(t, dec("117").Equal(order.Total))

	req := h.placer.got
	require.NotNil(t, req)
	assert.Equal(t, userID, *req.UserID)
	assert.Nil(t, req.Guest)
	require.NotNil(t, req.PromotionID)
	assert.Equal(t, promo.ID, *req.PromotionID)
	assert.True(t, dec("130").Equal(req.Subtotal))
	assert.True(t, dec("13").Equal(req.Discount))
	require.Len(t, req.Items, 2)

	_, err = h.svc.Get(ctx, owner, created.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "cart removed after checkout")
}

func TestServiceCheckoutKeepsCartOnRejection(t *testing.T) {
	h := newCartHarness(t)
	ctx := context.Background()
	h.placer.err = pkgerrors.New(pkgerrors.CodeValidation, "guest name and email are required")

	created, err := h.svc.Create(ctx, Owner{})
	require.NoError(t, err)

	_, err = h.svc.Checkout(ctx, Owner{}, created.ID, CheckoutInput{})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "empty cart")

	_, err = h.svc.AddItem(ctx, Owner{}, created.ID, h.fries.ID, 1)
	require.NoError(t, err)
	_, err = h.svc.Checkout(ctx, Owner{}, created.ID, CheckoutInput{GuestName: "Lu"})
	require.Error(t, err)
	require.NotNil(t, h.placer.got.Guest)
	assert.Equal(t, "Lu", h.placer.got.Guest.Name)

	_, err = h.svc.Get(ctx, Owner{}, created.ID)
	require.NoError(t, err)
	_, err = h.svc.AddItem(ctx, Owner{}, created.ID, h.fries.ID, 1)
	require.NoError(t, err, "a failed checkout releases the cart")
}

// gatedPlacer blocks inside Create until release is closed.
type gatedPlacer struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *gatedPlacer) Create(_ context.Context, input orders.CreateOrderInput) (*orders.OrderDTO, error) {
	g.calls.Add(1)
	g.entered <- struct{}{}
	<-g.release
	return &orders.OrderDTO{ID: uuid.New(), Total: input.Total}, nil
}

func TestServiceCheckoutPlacesOneOrderPerCart(t *testing.T) {
	h := newCartHarness(t)
	ctx := context.Background()
	placer := &gatedPlacer{entered: make(chan struct{}, 2), release: make(chan struct{})}
	store, err := NewRedisStore(h.kv, time.Hour)
	require.NoError(t, err)
	svc, err := NewService(store, stubMenu{h.burger.ID: h.burger, h.fries.ID: h.fries}, h.promos, placer, nil)
	require.NoError(t, err)

	created, err := svc.Create(ctx, Owner{})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, Owner{}, created.ID, h.burger.ID, 2)
	require.NoError(t, err)

	input := CheckoutInput{GuestName: "Lu", GuestEmail: "lu@example.com"}
	type result struct {
		order *orders.OrderDTO
		err   error
	}
	first := make(chan result, 1)
	go func() {
		order, err := svc.Checkout(ctx, Owner{}, created.ID, input)
		first <- result{order, err}
	}()
	select {
	case <-placer.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first checkout never reached the order placer")
	}

	_, err = svc.Checkout(ctx, Owner{}, created.ID, input)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict), "second checkout: %v", err)
	_, err = svc.AddItem(ctx, Owner{}, created.ID, h.fries.ID, 1)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict), "mutation during checkout: %v", err)
	_, err = svc.Get(ctx, Owner{}, created.ID)
	assert.NoError(t, err, "reads stay allowed")

	close(placer.release)
	res := <-first
	require.NoError(t, res.err)
	require.NotNil(t, res.order)
	assert.True(t, dec("100").Equal(res.order.Total))
	assert.Equal(t, int32(1), placer.calls.Load())

	_, err = svc.Get(ctx, Owner{}, created.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestServiceCheckoutIgnoresStaleClaim(t *testing.T) {
	h := newCartHarness(t)
	ctx := context.Background()
	store, err := NewRedisStore(h.kv, time.Hour)
	require.NoError(t, err)

	created, err := h.svc.Create(ctx, Owner{})
	require.NoError(t, err)
	_, err = h.svc.AddItem(ctx, Owner{}, created.ID, h.fries.ID, 1)
	require.NoError(t, err)
	_, err = store.Update(ctx, created.ID, func(c *Cart) error {
		abandoned := time.Now().UTC().Add(-2 * checkoutClaimTTL)
		c.CheckoutStartedAt = &abandoned
		return nil
	})
	require.NoError(t, err)

	_, err = h.svc.Checkout(ctx, Owner{}, created.ID, CheckoutInput{GuestName: "Lu", GuestEmail: "lu@example.com"})
	require.NoError(t, err)
	require.NotNil(t, h.placer.got)
}

func TestServiceDeleteAndDiscard(t *testing.T) {
	h := newCartHarness(t)
	ctx := context.Background()
	userID := uuid.New()
	owner := Owner{UserID: &userID}

	a, err := h.svc.Create(ctx, owner)
	require.NoError(t, err)
	b, err := h.svc.Create(ctx, owner)
	require.NoError(t, err)
	foreign, err := h.svc.Create(ctx, Owner{UserID: ptr(uuid.New())})
	require.NoError(t, err)

	require.NoError(t, h.svc.Delete(ctx, owner, a.ID))
	assert.True(t, pkgerrors.HasCode(h.svc.Delete(ctx, owner, a.ID), pkgerrors.CodeNotFound))

	require.NoError(t, h.svc.Discard(ctx, owner, []uuid.UUID{b.ID, foreign.ID, uuid.New()}))
	_, err = h.svc.Get(ctx, owner, b.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	_, ok := h.kv.data[h.kv.CartKey(foreign.ID.String())]
	assert.True(t, ok, "other users' carts survive")
}

func ptr[T any](v T) *T { return &v }
