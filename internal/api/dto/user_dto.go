package dto

import (
	"time"

	"github.com/spec-kit/civic-issue-service/internal/domain"
)

// SignupRequest payload for new accounts. Role defaults to citizen.
type SignupRequest struct {
	Name     string          `json:"name" form:"name"`
	Email    string          `json:"email" form:"email"`
	Password string          `json:"password" form:"password"`
	Role     domain.UserRole `json:"role" form:"role"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Email string          `json:"email"`
	Role  domain.UserRole `json:"role"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	}
}
