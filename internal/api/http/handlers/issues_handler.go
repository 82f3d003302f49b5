package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/api/dto"
	"github.com/spec-kit/civic-issue-service/internal/auth"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/service"
	"github.com/spec-kit/civic-issue-service/internal/storage"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// PhotoUploader is the slice of the photo store the handler needs.
type PhotoUploader interface {
	Save(ctx context.Context, key, contentType string, reader io.Reader, size int64) (string, error)
}

// IssuesHandler exposes citizen-facing issue endpoints.
type IssuesHandler struct {
	issues       *service.IssueService
	photos       PhotoUploader
	maxPhotoSize int64
}

// NewIssuesHandler constructs the handler.
func NewIssuesHandler(issues *service.IssueService, photos PhotoUploader, maxPhotoSize int64) *IssuesHandler {
	return &IssuesHandler{issues: issues, photos: photos, maxPhotoSize: maxPhotoSize}
}

// List handles GET /issues.
func (h *IssuesHandler) List(c *fiber.Ctx) error {
	filter, err := parseListFilter(c)
	if err != nil {
		return err
	}

	items, err := h.issues.ListWithReporters(c.Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueListWithReporters(items)})
}

// ListMine handles GET /users/me/issues.
func (h *IssuesHandler) ListMine(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("invalid or expired token")
	}

	issues, err := h.issues.ListForReporter(c.Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueListResponse(issues)})
}

// Create handles POST /issues (multipart form with optional photo).
func (h *IssuesHandler) Create(c *fiber.Ctx) error {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("invalid or expired token")
	}

	input := service.IssueCreateInput{
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Category:    domain.IssueCategory(c.FormValue("category")),
	}

	lat, err := parseOptionalFloat(c.FormValue("latitude"), "latitude")
	if err != nil {
		return err
	}
	lon, err := parseOptionalFloat(c.FormValue("longitude"), "longitude")
	if err != nil {
		return err
	}
	input.Latitude = lat
	input.Longitude = lon

	// Validate before the upload so a rejected report never stores a photo.
	if err := h.issues.ValidateSubmission(input); err != nil {
		return err
	}

	photoPath, err := h.storePhoto(c, user.ID)
	if err != nil {
		return err
	}
	input.PhotoPath = photoPath

	issue, err := h.issues.Submit(c.Context(), user, input)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": dto.NewIssueResponse(*issue),
	})
}

// storePhoto validates and persists an optional multipart photo, returning
// the stored path or nil when no photo was attached.
func (h *IssuesHandler) storePhoto(c *fiber.Ctx, userID string) (*string, error) {
	header, err := c.FormFile("photo")
	if err != nil || header == nil {
		return nil, nil
	}

	ext, contentType, ok := storage.ValidateFilename(header.Filename)
	if !ok {
		return nil, apperrors.NewValidationError("invalid file type", map[string]any{
			"allowed": storage.AllowedExtensions(),
		})
	}
	if h.maxPhotoSize > 0 && header.Size > h.maxPhotoSize {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("file size exceeds %d byte limit", h.maxPhotoSize),
			map[string]any{"size": header.Size},
		)
	}

	file, err := header.Open()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	defer file.Close()

	key := storage.ObjectKey(userID, time.Now().UTC(), ext)
	path, err := h.photos.Save(c.Context(), key, contentType, file, header.Size)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &path, nil
}

func parseListFilter(c *fiber.Ctx) (service.IssueListFilter, error) {
	filter := service.IssueListFilter{
		Limit:  c.QueryInt("limit", 100),
		Offset: c.QueryInt("skip", 0),
	}

	if raw := c.Query("category"); raw != "" {
		category := domain.IssueCategory(raw)
		if !domain.ValidCategory(category) {
			return filter, apperrors.NewValidationError("invalid category", map[string]any{"field": "category"})
		}
		filter.Category = &category
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.IssueStatus(raw)
		if !domain.ValidStatus(status) {
			return filter, apperrors.NewValidationError("invalid status", map[string]any{"field": "status"})
		}
		filter.Status = &status
	}
	filter.CitizenOnly = c.QueryBool("citizen_only", false)
	return filter, nil
}

func parseOptionalFloat(raw, field string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid "+field, map[string]any{"field": field})
	}
	return &val, nil
}
