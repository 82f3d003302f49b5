package domain

import "time"

// UserRole separates citizens from administrators.
type UserRole string

const (
	UserRoleCitizen UserRole = "citizen"
	UserRoleAdmin   UserRole = "admin"
)

// ValidRole reports whether the given role is part of the closed set.
func ValidRole(role UserRole) bool {
	return role == UserRoleCitizen || role == UserRoleAdmin
}

// User is the domain model for accounts that report or triage issues.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}
