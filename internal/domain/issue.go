package domain

import "time"

// IssueStatus enumerates lifecycle states for reported issues.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusResolved   IssueStatus = "resolved"
	IssueStatusRejected   IssueStatus = "rejected"
)

// ValidStatus reports whether the status belongs to the closed set.
func ValidStatus(status IssueStatus) bool {
	switch status {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusResolved, IssueStatusRejected:
		return true
	}
	return false
}

// IssueCategory enumerates the coarse categories citizens can report.
type IssueCategory string

const (
	CategoryPothole     IssueCategory = "pothole"
	CategoryGarbage     IssueCategory = "garbage"
	CategoryStreetlight IssueCategory = "streetlight"
	CategoryOther       IssueCategory = "other"
)

// Categories lists every valid category.
func Categories() []IssueCategory {
	return []IssueCategory{CategoryPothole, CategoryGarbage, CategoryStreetlight, CategoryOther}
}

// ValidCategory reports whether the category belongs to the closed set.
func ValidCategory(category IssueCategory) bool {
	switch category {
	case CategoryPothole, CategoryGarbage, CategoryStreetlight, CategoryOther:
		return true
	}
	return false
}

// IssuePriority enumerates triage urgency.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "low"
	IssuePriorityMedium IssuePriority = "medium"
	IssuePriorityHigh   IssuePriority = "high"
)

// DefaultPriority maps a category to its default triage priority.
func DefaultPriority(category IssueCategory) IssuePriority {
	switch category {
	case CategoryPothole:
		return IssuePriorityHigh
	case CategoryGarbage, CategoryStreetlight:
		return IssuePriorityMedium
	default:
		return IssuePriorityLow
	}
}

// Issue is the aggregate for citizen-submitted reports.
type Issue struct {
	ID          string
	ReporterID  string
	Title       string
	Description string
	Category    IssueCategory
	PhotoPath   *string
	Latitude    *float64
	Longitude   *float64
	Status      IssueStatus
	Priority    IssuePriority
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
