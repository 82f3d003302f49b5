package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// RequireRole ensures the authenticated user holds the given role.
// The gate is pure: it never mutates request or store state.
func RequireRole(role domain.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := UserFromContext(c)
		if !ok {
			return unauthenticated()
		}
		if user.Role != role {
			return apperrors.NewForbidden(string(role) + " access required")
		}
		return c.Next()
	}
}

// RequireAdmin restricts a route to admin callers.
func RequireAdmin() fiber.Handler {
	return RequireRole(domain.UserRoleAdmin)
}
