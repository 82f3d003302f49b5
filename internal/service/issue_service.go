package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

const (
	listCacheTTL        = 30 * time.Second
	listCacheVersionKey = "issues:list:ver"
)

// PhotoAssets is the slice of the photo store the ledger needs for cleanup.
type PhotoAssets interface {
	Remove(ctx context.Context, photoPath string) error
}

// IssueService coordinates the issue ledger.
type IssueService struct {
	issues     repository.IssueRepository
	users      repository.UserRepository
	photos     PhotoAssets
	cache      *redis.Client
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// IssueDependencies bundles collaborators for the issue service.
type IssueDependencies struct {
	IssueRepo  repository.IssueRepository
	UserRepo   repository.UserRepository
	Photos     PhotoAssets
	Cache      *redis.Client
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewIssueService constructs the service. Cache and dispatcher are optional.
func NewIssueService(deps IssueDependencies) *IssueService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssueService{
		issues:     deps.IssueRepo,
		users:      deps.UserRepo,
		photos:     deps.Photos,
		cache:      deps.Cache,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// IssueCreateInput describes a citizen report.
type IssueCreateInput struct {
	Title       string
	Description string
	Category    domain.IssueCategory
	Latitude    *float64
	Longitude   *float64
	PhotoPath   *string
}

// IssueListFilter describes listing parameters.
type IssueListFilter struct {
	Category    *domain.IssueCategory
	Status      *domain.IssueStatus
	CitizenOnly bool
	Limit       int
	Offset      int
}

// IssueWithReporter pairs an issue with its reporting user.
type IssueWithReporter struct {
	Issue    domain.Issue
	Reporter *domain.User
}

// ValidateSubmission checks report fields without touching any store. The
// handler runs it before persisting the photo so a rejected report never
// leaves an orphaned object behind.
func (s *IssueService) ValidateSubmission(input IssueCreateInput) error {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)

	if utf8.RuneCountInString(title) < 3 {
		return apperrors.NewValidationError("title must be at least 3 characters long", map[string]any{"field": "title"})
	}
	if utf8.RuneCountInString(description) < 10 {
		return apperrors.NewValidationError("description must be at least 10 characters long", map[string]any{"field": "description"})
	}
	if !domain.ValidCategory(input.Category) {
		return apperrors.NewValidationError("invalid category", map[string]any{"field": "category"})
	}
	if input.Latitude != nil && (*input.Latitude < -90 || *input.Latitude > 90) {
		return apperrors.NewValidationError("latitude must be between -90 and 90", map[string]any{"field": "latitude"})
	}
	if input.Longitude != nil && (*input.Longitude < -180 || *input.Longitude > 180) {
		return apperrors.NewValidationError("longitude must be between -180 and 180", map[string]any{"field": "longitude"})
	}
	return nil
}

// Submit validates the report and appends it to the ledger with status open
// and a category-derived default priority.
func (s *IssueService) Submit(ctx context.Context, reporter *domain.User, input IssueCreateInput) (*domain.Issue, error) {
	if err := s.ValidateSubmission(input); err != nil {
		return nil, err
	}

	issue := &domain.Issue{
		ReporterID:  reporter.ID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Category:    input.Category,
		PhotoPath:   input.PhotoPath,
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
		Status:      domain.IssueStatusOpen,
		Priority:    domain.DefaultPriority(input.Category),
	}
	if err := s.issues.Create(ctx, issue); err != nil {
		return nil, err
	}

	s.bumpListVersion(ctx)
	s.publishEvent(ctx, events.Event{
		Type:    events.EventIssueCreated,
		IssueID: issue.ID,
		ActorID: reporter.ID,
		Payload: events.IssueCreatedPayload{
			Category: issue.Category,
			Priority: issue.Priority,
			Title:    issue.Title,
		},
	})
	return issue, nil
}

// List returns issues ordered by creation time descending. Public listings
// are served from a short-lived Redis cache keyed by a version counter that
// every write bumps.
func (s *IssueService) List(ctx context.Context, filter IssueListFilter) ([]domain.Issue, error) {
	key, cacheable := s.listCacheKey(ctx, filter)
	if cacheable {
		if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var cached []domain.Issue
			if json.Unmarshal(data, &cached) == nil {
				return cached, nil
			}
		}
	}

	issues, err := s.issues.ListWithFilter(ctx, repository.IssueFilter{
		Category:    filter.Category,
		Status:      filter.Status,
		CitizenOnly: filter.CitizenOnly,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	})
	if err != nil {
		return nil, err
	}

	if cacheable {
		if data, err := json.Marshal(issues); err == nil {
			if err := s.cache.Set(ctx, key, data, listCacheTTL).Err(); err != nil {
				s.logger.Debug("issue list cache set failed", zap.Error(err))
			}
		}
	}
	return issues, nil
}

// ListWithReporters decorates a listing with each issue's reporting user.
func (s *IssueService) ListWithReporters(ctx context.Context, filter IssueListFilter) ([]IssueWithReporter, error) {
	issues, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	reporters := make(map[string]*domain.User, len(issues))
	result := make([]IssueWithReporter, 0, len(issues))
	for _, issue := range issues {
		reporter, ok := reporters[issue.ReporterID]
		if !ok {
			reporter, err = s.users.GetByID(ctx, issue.ReporterID)
			if err != nil {
				if err != pgx.ErrNoRows {
					return nil, err
				}
				reporter = nil
			}
			reporters[issue.ReporterID] = reporter
		}
		result = append(result, IssueWithReporter{Issue: issue, Reporter: reporter})
	}
	return result, nil
}

// ListForReporter returns every issue submitted by the given user.
func (s *IssueService) ListForReporter(ctx context.Context, userID string) ([]domain.Issue, error) {
	return s.issues.ListWithFilter(ctx, repository.IssueFilter{ReporterID: &userID})
}

// SetStatus overwrites the status of an issue. Only admins may triage; no
// transition table is enforced.
func (s *IssueService) SetStatus(ctx context.Context, actor *domain.User, id string, newStatus domain.IssueStatus) (*domain.Issue, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("admin access required")
	}
	if !domain.ValidStatus(newStatus) {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"field": "status"})
	}

	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("issue", map[string]any{"id": id})
		}
		return nil, err
	}

	oldStatus := issue.Status
	if err := s.issues.UpdateStatus(ctx, id, newStatus); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("issue", map[string]any{"id": id})
		}
		return nil, err
	}
	issue.Status = newStatus

	s.bumpListVersion(ctx)
	s.publishEvent(ctx, events.Event{
		Type:    events.EventIssueStatusChanged,
		IssueID: issue.ID,
		ActorID: actor.ID,
		Payload: events.IssueStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
	return issue, nil
}

// Resolve marks an issue resolved.
func (s *IssueService) Resolve(ctx context.Context, actor *domain.User, id string) (*domain.Issue, error) {
	return s.SetStatus(ctx, actor, id, domain.IssueStatusResolved)
}

// Delete removes an issue and best-effort removes its photo asset. Photo
// removal failures never surface to the caller.
func (s *IssueService) Delete(ctx context.Context, actor *domain.User, id string) error {
	if !actor.IsAdmin() {
		return apperrors.NewForbidden("admin access required")
	}

	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewNotFound("issue", map[string]any{"id": id})
		}
		return err
	}

	if err := s.issues.Delete(ctx, id); err != nil {
		if err == pgx.ErrNoRows {
			return apperrors.NewNotFound("issue", map[string]any{"id": id})
		}
		return err
	}

	if issue.PhotoPath != nil && s.photos != nil {
		if err := s.photos.Remove(ctx, *issue.PhotoPath); err != nil {
			s.logger.Warn("photo cleanup failed", zap.String("issue_id", id), zap.Error(err))
		}
	}

	s.bumpListVersion(ctx)
	s.publishEvent(ctx, events.Event{
		Type:    events.EventIssueDeleted,
		IssueID: id,
		ActorID: actor.ID,
		Payload: events.IssueDeletedPayload{
			Category: issue.Category,
			HadPhoto: issue.PhotoPath != nil,
		},
	})
	return nil
}

func (s *IssueService) listCacheKey(ctx context.Context, filter IssueListFilter) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	version, err := s.cache.Get(ctx, listCacheVersionKey).Int64()
	if err != nil && err != redis.Nil {
		return "", false
	}

	category, status := "", ""
	if filter.Category != nil {
		category = string(*filter.Category)
	}
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	key := fmt.Sprintf("issues:list:v%d:%s:%s:%t:%d:%d",
		version, category, status, filter.CitizenOnly, filter.Limit, filter.Offset)
	return key, true
}

func (s *IssueService) bumpListVersion(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, listCacheVersionKey).Err(); err != nil {
		s.logger.Debug("issue list cache version bump failed", zap.Error(err))
	}
}

func (s *IssueService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
