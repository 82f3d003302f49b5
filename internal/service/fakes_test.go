package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/repository"
)

// memUserRepo is an in-memory stand-in for the Postgres user repository.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[string]*domain.User{}}
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// memIssueRepo is an in-memory stand-in for the Postgres issue repository.
// It consults the user repo to emulate the citizen-only join.
type memIssueRepo struct {
	mu     sync.Mutex
	users  *memUserRepo
	issues []domain.Issue
	seq    int
}

func newMemIssueRepo(users *memUserRepo) *memIssueRepo {
	return &memIssueRepo{users: users}
}

func (r *memIssueRepo) Create(_ context.Context, issue *domain.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	issue.ID = uuid.NewString()
	issue.CreatedAt = time.Unix(1700000000, 0).Add(time.Duration(r.seq) * time.Second)
	issue.UpdatedAt = issue.CreatedAt
	r.issues = append(r.issues, *issue)
	return nil
}

func (r *memIssueRepo) UpdateStatus(_ context.Context, id string, status domain.IssueStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.issues {
		if r.issues[i].ID == id {
			r.issues[i].Status = status
			r.issues[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *memIssueRepo) GetByID(_ context.Context, id string) (*domain.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.issues {
		if r.issues[i].ID == id {
			clone := r.issues[i]
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memIssueRepo) ListWithFilter(ctx context.Context, filter repository.IssueFilter) ([]domain.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Issue
	// created_at descending equals reverse insertion order here
	for i := len(r.issues) - 1; i >= 0; i-- {
		issue := r.issues[i]
		if filter.ReporterID != nil && issue.ReporterID != *filter.ReporterID {
			continue
		}
		if filter.Category != nil && issue.Category != *filter.Category {
			continue
		}
		if filter.Status != nil && issue.Status != *filter.Status {
			continue
		}
		if filter.CitizenOnly {
			reporter, err := r.users.GetByID(ctx, issue.ReporterID)
			if err != nil || reporter.Role != domain.UserRoleCitizen {
				continue
			}
		}
		result = append(result, issue)
	}

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (r *memIssueRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.issues {
		if r.issues[i].ID == id {
			r.issues = append(r.issues[:i], r.issues[i+1:]...)
			return nil
		}
	}
	return pgx.ErrNoRows
}

// memPhotoAssets records removals and can be told to fail.
type memPhotoAssets struct {
	mu      sync.Mutex
	removed []string
	err     error
}

func (p *memPhotoAssets) Remove(_ context.Context, photoPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.removed = append(p.removed, photoPath)
	return nil
}
