package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mesa-backend/internal/auth"
	"github.com/angelmondragon/mesa-backend/internal/users"
	"github.com/angelmondragon/mesa-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
)

type stubAuthService struct {
	resp       *auth.AuthResponse
	tokens     *auth.TokenResponse
	err        error
	registered auth.RegisterRequest
	adminCalls int
	logout     *auth.LogoutInput
}

func (s *stubAuthService) Register(_ context.Context, req auth.RegisterRequest) (*auth.AuthResponse, error) {
	s.registered = req
	return s.resp, s.err
}

func (s *stubAuthService) Login(_ context.Context, _ auth.LoginRequest) (*auth.AuthResponse, error) {
	return s.resp, s.err
}

func (s *stubAuthService) AdminLogin(_ context.Context, _ auth.LoginRequest) (*auth.AuthResponse, error) {
	s.adminCalls++
	return s.resp, s.err
}

func (s *stubAuthService) Refresh(_ context.Context, _ auth.RefreshRequest) (*auth.TokenResponse, error) {
	return s.tokens, s.err
}

func (s *stubAuthService) Logout(_ context.Context, input auth.LogoutInput) error {
	s.logout = &input
	return s.err
}

func sampleAuthResponse() *auth.AuthResponse {
	now := time.Now().UTC()
	return &auth.AuthResponse{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		User: &users.UserDTO{
			ID:        uuid.New(),
			Email:     "ana@example.com",
			FirstName: "Ana",
			Role:      enums.UserRoleCustomer,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuthLoginSetsTokenHeader(t *testing.T) {
	svc := &stubAuthService{resp: sampleAuthResponse()}
	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "ana@example.com",
		"password": "secret-password",
	})
	rec := httptest.NewRecorder()

	AuthLogin(svc, logger.Nop()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(tokenHeader); got != "access-token" {
		t.Fatalf("expected token header, got %q", got)
	}

	var envelope struct {
		Data auth.AuthResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.RefreshToken != "refresh-token" {
		t.Fatalf("unexpected refresh token %q", envelope.Data.RefreshToken)
	}
	if envelope.Data.User == nil || envelope.Data.User.Email != "ana@example.com" {
		t.Fatalf("unexpected user %+v", envelope.Data.User)
	}
}

func TestAuthLoginRejectsInvalidBody(t *testing.T) {
	svc := &stubAuthService{resp: sampleAuthResponse()}
	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "not-an-email"})
	rec := httptest.NewRecorder()

	AuthLogin(svc, logger.Nop()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAuthLoginUnauthorized(t *testing.T) {
	svc := &stubAuthService{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")}
	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "ana@example.com",
		"password": "wrong",
	})
	rec := httptest.NewRecorder()

	AuthLogin(svc, logger.Nop()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if rec.Header().Get(tokenHeader) != "" {
		t.Fatal("token header must not be set on failure")
	}
}

func TestAdminAuthLoginUsesAdminPath(t *testing.T) {
	svc := &stubAuthService{resp: sampleAuthResponse()}
	req := jsonRequest(t, http.MethodPost, "/api/admin/v1/auth/login", map[string]string{
		"email":    "admin@example.com",
		"password": "secret-password",
	})
	rec := httptest.NewRecorder()

	AdminAuthLogin(svc, logger.Nop()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.adminCalls != 1 {
		t.Fatalf("expected admin login call, got %d", svc.adminCalls)
	}
}

func TestAuthRegisterCreated(t *testing.T) {
	svc := &stubAuthService{resp: sampleAuthResponse()}
	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"first_name": "  Ana  ",
		"last_name":  "Lopez",
		"email":      "ana@example.com",
		"password":   "secret-password",
	})
	rec := httptest.NewRecorder()

	AuthRegister(svc, logger.Nop()).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.registered.FirstName != "Ana" {
		t.Fatalf("expected sanitized first name, got %q", svc.registered.FirstName)
	}
	if rec.Header().Get(tokenHeader) != "access-token" {
		t.Fatal("expected token header")
	}
}

func TestAuthRegisterConflict(t *testing.T) {
	svc := &stubAuthService{err: pkgerrors.New(pkgerrors.CodeConflict, "email already registered")}
	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"first_name": "Ana",
		"email":      "ana@example.com",
		"password":   "secret-password",
	})
	rec := httptest.NewRecorder()

	AuthRegister(svc, logger.Nop()).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}
