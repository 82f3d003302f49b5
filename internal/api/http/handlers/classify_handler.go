package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/api/dto"
	"github.com/spec-kit/civic-issue-service/internal/classifier"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// ClassifyHandler exposes the photo classification endpoint.
type ClassifyHandler struct {
	classifier classifier.Classifier
}

// NewClassifyHandler constructs the handler.
func NewClassifyHandler(cls classifier.Classifier) *ClassifyHandler {
	return &ClassifyHandler{classifier: cls}
}

// Classify handles POST /ai/classify. The classifier is an untrusted stub;
// its verdict is advisory only and never persisted.
func (h *ClassifyHandler) Classify(c *fiber.Ctx) error {
	header, err := c.FormFile("image")
	if err != nil || header == nil {
		return apperrors.NewValidationError("image file required", nil)
	}

	file, err := header.Open()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	prediction, err := h.classifier.Predict(c.Context(), data)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(dto.NewClassifyResponse(prediction))
}
