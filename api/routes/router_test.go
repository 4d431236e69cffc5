package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mesa-backend/internal/orders"
	pkgAuth "github.com/angelmondragon/mesa-backend/pkg/auth"
	"github.com/angelmondragon/mesa-backend/pkg/config"
	"github.com/angelmondragon/mesa-backend/pkg/enums"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
	"github.com/angelmondragon/mesa-backend/pkg/metrics"
	"github.com/angelmondragon/mesa-backend/pkg/pagination"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubSessions struct{}

func (stubSessions) HasSession(ctx context.Context, accessID string) (bool, error) {
	return true, nil
}

type stubOrders struct {
	created []orders.CreateOrderInput
}

func (s *stubOrders) Create(ctx context.Context, input orders.CreateOrderInput) (*orders.OrderDTO, error) {
	s.created = append(s.created, input)
	return &orders.OrderDTO{
		ID:       uuid.New(),
		UserID:   input.UserID,
		Status:   enums.OrderStatusPending,
		Subtotal: input.Subtotal,
		Discount: input.Discount,
		Total:    input.Total,
	}, nil
}

func (s *stubOrders) ListForUser(ctx context.Context, userID uuid.UUID, status *enums.OrderStatus, params pagination.Params) (*pagination.Page[orders.OrderDTO], error) {
	return &pagination.Page[orders.OrderDTO]{Items: []orders.OrderDTO{}}, nil
}

func (s *stubOrders) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*orders.OrderDTO, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubOrders) CancelForUser(ctx context.Context, userID, orderID uuid.UUID, reason string) (*orders.OrderDTO, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubOrders) List(ctx context.Context, filters orders.ListFilters, params pagination.Params) (*pagination.Page[orders.OrderDTO], error) {
	return &pagination.Page[orders.OrderDTO]{Items: []orders.OrderDTO{}}, nil
}

func (s *stubOrders) Get(ctx context.Context, orderID uuid.UUID) (*orders.OrderDTO, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubOrders) UpdateStatus(ctx context.Context, input orders.StatusChangeInput) (*orders.OrderDTO, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubOrders) ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	return 0, nil
}

type stubCache struct {
	stubPinger
	data map[string]string
}

func (c *stubCache) Get(ctx context.Context, key string) (string, error) {
	return c.data[key], nil
}

func (c *stubCache) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key], _ = value.(string)
	return true, nil
}

func (c *stubCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.data[key], _ = value.(string)
	return nil
}

func (c *stubCache) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.data, key)
	}
	return nil
}

func (c *stubCache) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (c *stubCache) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	return true, 1, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "mesa-test", ExpirationMinutes: 15},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			MaxAgeSeconds:  60,
		},
		Eventing: config.EventingConfig{IdempotencyTTL: time.Hour},
	}
}

type routerHarness struct {
	cfg     *config.Config
	handler http.Handler
	orders  *stubOrders
}

func newRouterHarness(t *testing.T, db stubPinger) *routerHarness {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	ordersSvc := &stubOrders{}
	handler := NewRouter(Dependencies{
		Config:      cfg,
		Logger:      logger.Nop(),
		DB:          db,
		Cache:       &stubCache{data: map[string]string{}},
		Sessions:    stubSessions{},
		Gatherer:    reg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Orders:      ordersSvc,
	})
	return &routerHarness{cfg: cfg, handler: handler, orders: ordersSvc}
}

func (h *routerHarness) token(t *testing.T, role enums.UserRole) (string, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	token, err := pkgAuth.MintAccessToken(h.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
		JTI:    uuid.NewString(),
	})
	require.NoError(t, err)
	return token, userID
}

func (h *routerHarness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthRoutes(t *testing.T) {
	h := newRouterHarness(t, stubPinger{})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-Mesa-Env"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = h.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ready"`)
}

func TestHealthReadyReportsDatabaseOutage(t *testing.T) {
	h := newRouterHarness(t, stubPinger{err: fmt.Errorf("connection refused")})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"unreachable"`)
}

func TestGuestOrderCreateAndMetrics(t *testing.T) {
	h := newRouterHarness(t, stubPinger{})
	item := uuid.New()
	body := fmt.Sprintf(`{"guest_name":"Ana","guest_email":"ana@example.com","items":[{"menu_item_id":%q,"quantity":2,"price":50}],"subtotal":100,"discount":0,"total":"100.00"}`, item)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := h.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, h.orders.created, 1)
	assert.Nil(t, h.orders.created[0].UserID)
	require.NotNil(t, h.orders.created[0].Guest)
	assert.True(t, h.orders.created[0].Total.Equal(decimal.NewFromInt(100)))

	rec = h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	raw, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `mesa_http_requests_total{method="POST",route="/api/v1/orders",status="201"} 1`)
}

func TestSignedInOrderUsesTokenUser(t *testing.T) {
	h := newRouterHarness(t, stubPinger{})
	token, userID := h.token(t, enums.UserRoleCustomer)
	body := fmt.Sprintf(`{"items":[{"menu_item_id":%q,"quantity":1,"price":"30"}],"subtotal":30,"discount":0,"total":30}`, uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := h.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, h.orders.created[0].UserID)
	assert.Equal(t, userID, *h.orders.created[0].UserID)
	assert.Nil(t, h.orders.created[0].Guest)
}

func TestOrderCreateReplaysIdempotencyKey(t *testing.T) {
	h := newRouterHarness(t, stubPinger{})
	body := fmt.Sprintf(`{"guest_name":"Ana","guest_email":"ana@example.com","items":[{"menu_item_id":%q,"quantity":1,"price":10}],"subtotal":10,"discount":0,"total":10}`, uuid.New())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "order-1")
		rec := h.do(req)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	assert.Len(t, h.orders.created, 1)
}

func TestCustomerRoutesRequireAuth(t *testing.T) {
	h := newRouterHarness(t, stubPinger{})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _ := h.token(t, enums.UserRoleCustomer)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = h.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesEnforceRoles(t *testing.T) {
	h := newRouterHarness(t, stubPinger{})

	customer, _ := h.token(t, enums.UserRoleCustomer)
	staff, _ := h.token(t, enums.UserRoleStaff)
	admin, _ := h.token(t, enums.UserRoleAdmin)

	cases := []struct {
		name  string
		token string
		path  string
		want  int
	}{
		{"customer blocked from orders", customer, "/api/admin/v1/orders", http.StatusForbidden},
		{"staff lists orders", staff, "/api/admin/v1/orders", http.StatusOK},
		{"staff blocked from users", staff, "/api/admin/v1/users", http.StatusForbidden},
		{"admin lists orders", admin, "/api/admin/v1/orders", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		req.Header.Set("Authorization", "Bearer "+tc.token)
		rec := h.do(req)
		assert.Equal(t, tc.want, rec.Code, tc.name)
	}
}
