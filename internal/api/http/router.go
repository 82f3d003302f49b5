package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/api/http/handlers"
	"github.com/spec-kit/civic-issue-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Issues         *handlers.IssuesHandler
	Admin          *handlers.AdminHandler
	Classify       *handlers.ClassifyHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/signup", cfg.Auth.Signup)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Get("/verify", cfg.AuthMiddleware.Handle, cfg.Auth.Verify)

	app.Get("/issues", cfg.Issues.List)
	app.Post("/issues", cfg.AuthMiddleware.Handle, cfg.Issues.Create)
	app.Get("/users/me/issues", cfg.AuthMiddleware.Handle, cfg.Issues.ListMine)

	app.Post("/ai/classify", cfg.AuthMiddleware.Handle, cfg.Classify.Classify)

	// Not grouped: group middleware would also gate the public GET /issues.
	app.Patch("/issues/:id/status", cfg.AuthMiddleware.Handle, auth.RequireAdmin(), cfg.Admin.SetStatus)
	app.Patch("/issues/:id/resolve", cfg.AuthMiddleware.Handle, auth.RequireAdmin(), cfg.Admin.Resolve)
	app.Delete("/issues/:id", cfg.AuthMiddleware.Handle, auth.RequireAdmin(), cfg.Admin.Delete)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	admin.Get("/issues", cfg.Admin.ListCitizenIssues)
	admin.Delete("/secure-test", cfg.Admin.SecureTest)
}
