package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/mesa-backend/internal/users"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest creates a customer account.
type RegisterRequest struct {
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"max=100"`
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// RefreshRequest exchanges a refresh token for a new pair. The access token
// may be expired; it only identifies the session.
type RefreshRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutInput ends the session behind AccessID and drops the listed carts.
type LogoutInput struct {
	AccessID string
	UserID   uuid.UUID
	CartIDs  []uuid.UUID
}

// AuthResponse contains the tokens and user produced by a successful login.
type AuthResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	User         *users.UserDTO `json:"user"`
}

// TokenResponse is the rotated token pair.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
