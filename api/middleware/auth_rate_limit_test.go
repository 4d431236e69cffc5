package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
)

type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newCountingLimiter() *countingLimiter {
	return &countingLimiter{counts: map[string]int64{}}
}

func (c *countingLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if c.err != nil {
		return false, 0, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[scope]++
	return c.counts[scope] <= limit, c.counts[scope], nil
}

func (c *countingLimiter) scopes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.counts))
	for scope := range c.counts {
		out = append(out, scope)
	}
	return out
}

func credentialRequest(path, email, addr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"email":"`+email+`","password":"secret"}`))
	req.RemoteAddr = addr
	return req
}

func TestAuthRateLimitRestoresBody(t *testing.T) {
	limiter := newCountingLimiter()
	policy := NewAuthRateLimitPolicy("login", time.Minute, 2, 2)
	handler := AuthRateLimit(policy, limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"email":"ana@example.com"`)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, credentialRequest("/api/v1/auth/login", "Ana@Example.com ", "1.2.3.4:5678"))
	require.Equal(t, http.StatusOK, rec.Code)

	scopes := limiter.scopes()
	require.Len(t, scopes, 2)
	for _, scope := range scopes {
		assert.NotContains(t, scope, "ana@example.com")
		assert.True(t, strings.HasPrefix(scope, "login:"), scope)
	}
}

func TestAuthRateLimitEmailCounterIgnoresCase(t *testing.T) {
	limiter := newCountingLimiter()
	policy := NewAuthRateLimitPolicy("login", time.Minute, 0, 2)
	handler := AuthRateLimit(policy, limiter, nil)(okHandler())

	emails := []string{"blocked@example.com", "BLOCKED@example.com", " blocked@EXAMPLE.com"}
	for i, email := range emails {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, credentialRequest("/api/v1/auth/login", email, "1.2.3.4:5678"))
		if i < 2 {
			require.Equal(t, http.StatusOK, rec.Code, "attempt %d", i)
			continue
		}
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		var payload struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, string(pkgerrors.CodeRateLimit), payload.Error.Code)
	}
}

func TestAuthRateLimitAddressCounterSetsRetryAfter(t *testing.T) {
	limiter := newCountingLimiter()
	policy := NewAuthRateLimitPolicy("register", time.Minute, 1, 0)
	handler := AuthRateLimit(policy, limiter, nil)(okHandler())

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, credentialRequest("/api/v1/auth/register", "a@example.com", "5.6.7.8:1234"))
	require.Equal(t, http.StatusOK, first.Code)

	// a different email from the same address still counts against it
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, credentialRequest("/api/v1/auth/register", "b@example.com", "5.6.7.8:4321"))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, credentialRequest("/api/v1/auth/register", "a@example.com", "9.9.9.9:1234"))
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestAuthRateLimitFailsOpen(t *testing.T) {
	limiter := newCountingLimiter()
	limiter.err = errors.New("redis down")
	policy := NewAuthRateLimitPolicy("login", time.Minute, 1, 1)
	handler := AuthRateLimit(policy, limiter, nil)(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, credentialRequest("/api/v1/auth/login", "a@example.com", "1.2.3.4:1"))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestAuthRateLimitDisabledPolicy(t *testing.T) {
	limiter := newCountingLimiter()
	handler := AuthRateLimit(NewAuthRateLimitPolicy("", 0, 1, 1), limiter, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, credentialRequest("/api/v1/auth/login", "a@example.com", "1.2.3.4:1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, limiter.scopes())
}
