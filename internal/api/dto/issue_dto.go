package dto

import (
	"time"

	"github.com/spec-kit/civic-issue-service/internal/classifier"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/service"
)

// IssueResponse is the wire form of an issue. Reporter is present on public
// listings only.
type IssueResponse struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Category    domain.IssueCategory `json:"category"`
	PhotoPath   *string              `json:"photo_path,omitempty"`
	Latitude    *float64             `json:"latitude,omitempty"`
	Longitude   *float64             `json:"longitude,omitempty"`
	Status      domain.IssueStatus   `json:"status"`
	Priority    domain.IssuePriority `json:"priority"`
	CreatedAt   time.Time            `json:"created_at"`
	Reporter    *UserResponse        `json:"reporter,omitempty"`
}

// StatusUpdateRequest payload for PATCH /issues/{id}/status.
type StatusUpdateRequest struct {
	Status domain.IssueStatus `json:"status" form:"status"`
}

// ClassifyResponse is the classifier verdict for an uploaded photo.
type ClassifyResponse struct {
	PredictedType  domain.IssueCategory             `json:"predicted_type"`
	Confidence     float64                          `json:"confidence"`
	AllPredictions map[domain.IssueCategory]float64 `json:"all_predictions"`
}

// NewIssueResponse maps a domain issue.
func NewIssueResponse(issue domain.Issue) IssueResponse {
	return IssueResponse{
		ID:          issue.ID,
		Title:       issue.Title,
		Description: issue.Description,
		Category:    issue.Category,
		PhotoPath:   issue.PhotoPath,
		Latitude:    issue.Latitude,
		Longitude:   issue.Longitude,
		Status:      issue.Status,
		Priority:    issue.Priority,
		CreatedAt:   issue.CreatedAt,
	}
}

// NewIssueListResponse maps a plain listing.
func NewIssueListResponse(issues []domain.Issue) []IssueResponse {
	result := make([]IssueResponse, 0, len(issues))
	for _, issue := range issues {
		result = append(result, NewIssueResponse(issue))
	}
	return result
}

// NewIssueListWithReporters maps a listing decorated with reporters.
func NewIssueListWithReporters(items []service.IssueWithReporter) []IssueResponse {
	result := make([]IssueResponse, 0, len(items))
	for _, item := range items {
		resp := NewIssueResponse(item.Issue)
		if item.Reporter != nil {
			reporter := NewUserResponse(item.Reporter)
			resp.Reporter = &reporter
		}
		result = append(result, resp)
	}
	return result
}

// NewClassifyResponse maps a classifier prediction.
func NewClassifyResponse(p classifier.Prediction) ClassifyResponse {
	return ClassifyResponse{
		PredictedType:  p.Category,
		Confidence:     p.Confidence,
		AllPredictions: p.Scores,
	}
}
