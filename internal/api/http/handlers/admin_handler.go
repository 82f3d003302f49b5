package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/api/dto"
	"github.com/spec-kit/civic-issue-service/internal/auth"
	"github.com/spec-kit/civic-issue-service/internal/service"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// AdminHandler exposes triage endpoints restricted to admins.
type AdminHandler struct {
	issues *service.IssueService
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(issues *service.IssueService) *AdminHandler {
	return &AdminHandler{issues: issues}
}

// SetStatus handles PATCH /issues/:id/status.
func (h *AdminHandler) SetStatus(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("invalid or expired token")
	}

	var req dto.StatusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	issue, err := h.issues.SetStatus(c.Context(), user, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueResponse(*issue)})
}

// Resolve handles PATCH /issues/:id/resolve.
func (h *AdminHandler) Resolve(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("invalid or expired token")
	}

	issue, err := h.issues.Resolve(c.Context(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueResponse(*issue)})
}

// Delete handles DELETE /issues/:id.
func (h *AdminHandler) Delete(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("invalid or expired token")
	}

	if err := h.issues.Delete(c.Context(), user, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

// ListCitizenIssues handles GET /admin/issues: the triage queue restricted
// to citizen-reported issues.
func (h *AdminHandler) ListCitizenIssues(c *fiber.Ctx) error {
	filter, err := parseListFilter(c)
	if err != nil {
		return err
	}
	filter.CitizenOnly = true

	items, err := h.issues.ListWithReporters(c.Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueListWithReporters(items)})
}

// SecureTest handles DELETE /admin/secure-test, a self-check that the admin
// gate is wired on destructive routes.
func (h *AdminHandler) SecureTest(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": fiber.Map{"admin_access": true}})
}
