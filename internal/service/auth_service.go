package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/auth"
	"github.com/spec-kit/civic-issue-service/internal/config"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// AuthService coordinates signup and login flows.
type AuthService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, users repository.UserRepository) *AuthService {
	return &AuthService{
		users:      users,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
	}
}

// Signup creates a new account. Validation runs before any mutation and the
// first violated constraint is reported.
func (s *AuthService) Signup(ctx context.Context, name, email, password string, role domain.UserRole) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)

	if utf8.RuneCountInString(name) < 2 {
		return nil, apperrors.NewValidationError("name must be at least 2 characters long", map[string]any{"field": "name"})
	}
	if !strings.Contains(email, "@") {
		return nil, apperrors.NewValidationError("invalid email address", map[string]any{"field": "email"})
	}
	if utf8.RuneCountInString(password) < 6 {
		return nil, apperrors.NewValidationError("password must be at least 6 characters long", map[string]any{"field": "password"})
	}
	if role == "" {
		role = domain.UserRoleCitizen
	}
	if !domain.ValidRole(role) {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"field": "role"})
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
	} else if err != pgx.ErrNoRows {
		return nil, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates an account and issues a bearer token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}

	token, exp, err := s.tokenMgr.Issue(user.Email)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, exp, nil
}

// EnsureSeedAccounts creates the configured admin and demo accounts when
// absent. Missing passwords skip the corresponding account.
func (s *AuthService) EnsureSeedAccounts(ctx context.Context, cfg config.SeedConfig, logger *zap.Logger) {
	seed := func(name, email, password string, role domain.UserRole) {
		if email == "" || password == "" {
			return
		}
		if _, err := s.Signup(ctx, name, email, password, role); err != nil {
			var domainErr = apperrors.ToDomainError(err)
			if domainErr.Code != "CONFLICT" {
				logger.Warn("seed account failed", zap.String("email", email), zap.Error(err))
			}
			return
		}
		logger.Info("seed account created", zap.String("email", email), zap.String("role", string(role)))
	}

	seed(cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword, domain.UserRoleAdmin)
	seed(cfg.DemoName, cfg.DemoEmail, cfg.DemoPassword, domain.UserRoleCitizen)
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// NormalizeEmail lower-cases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
