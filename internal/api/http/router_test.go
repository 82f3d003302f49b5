package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/api/http/handlers"
	"github.com/spec-kit/civic-issue-service/internal/auth"
	"github.com/spec-kit/civic-issue-service/internal/classifier"
	"github.com/spec-kit/civic-issue-service/internal/config"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/observability"
	"github.com/spec-kit/civic-issue-service/internal/persistence"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	"github.com/spec-kit/civic-issue-service/internal/service"
)

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

type memPhotoStore struct {
	mu    sync.Mutex
	saved []string
}

func (p *memPhotoStore) Save(_ context.Context, key, _ string, reader io.Reader, _ int64) (string, error) {
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, key)
	return "http://storage.local/issue-photos/" + key, nil
}

func (p *memPhotoStore) Remove(_ context.Context, _ string) error {
	return nil
}

type testEnv struct {
	app   *fiber.App
	users *memUserRepo
	store *memPhotoStore
	auth  *service.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newMemUserRepo()
	issues := newMemIssueRepo(users)
	store := &memPhotoStore{}
	logger := zap.NewNop()

	authService := service.NewAuthService(config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 300,
		BcryptCost:            4,
	}, users)

	issueService := service.NewIssueService(service.IssueDependencies{
		IssueRepo:  issues,
		UserRepo:   users,
		Photos:     store,
		Dispatcher: events.NewInMemoryDispatcher(),
		Logger:     logger,
	})

	app := fiber.New()
	RegisterMiddlewares(app, logger, observability.NewMetrics(), 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("test", "test", &persistence.Postgres{}, &persistence.Redis{}),
		Auth:           handlers.NewAuthHandler(authService),
		Issues:         handlers.NewIssuesHandler(issueService, store, 5*1024*1024),
		Admin:          handlers.NewAdminHandler(issueService),
		Classify:       handlers.NewClassifyHandler(classifier.NewMockClassifier(rand.NewSource(7))),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), users),
	})

	return &testEnv{app: app, users: users, store: store, auth: authService}
}

func (e *testEnv) do(t *testing.T, req *nethttp.Request) (*nethttp.Response, map[string]any) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var parsed map[string]any
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &parsed), "body: %s", body)
	}
	return resp, parsed
}

func (e *testEnv) signupAndLogin(t *testing.T, name, email, password string, role domain.UserRole) string {
	t.Helper()

	_, err := e.auth.Signup(context.Background(), name, email, password, role)
	require.NoError(t, err)

	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest(nethttp.MethodPost, "/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, body := e.do(t, req)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)

	token := body["data"].(map[string]any)["auth"].(map[string]any)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, fileContent []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, val := range fields {
		require.NoError(t, writer.WriteField(key, val))
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = part.Write(fileContent)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestHealthLive(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, httptest.NewRequest(nethttp.MethodGet, "/health", nil))
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestSignupValidationOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	payload, _ := json.Marshal(map[string]string{"name": "A", "email": "a@x.com", "password": "secret1"})
	req := httptest.NewRequest(nethttp.MethodPost, "/auth/signup", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, body := env.do(t, req)
	require.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", body["error"].(map[string]any)["code"])
}

func TestCitizenReportFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.signupAndLogin(t, "Demo Citizen", "demo@citizen.com", "demo-secret", domain.UserRoleCitizen)

	buf, contentType := multipartBody(t, map[string]string{
		"title":       "Deep pothole on Elm Street",
		"description": "A wheel-swallowing pothole right before the crosswalk.",
		"category":    "pothole",
		"latitude":    "40.7128",
		"longitude":   "-74.0060",
	}, "", "", nil)

	req := httptest.NewRequest(nethttp.MethodPost, "/issues", buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, body := env.do(t, req)
	require.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	created := body["data"].(map[string]any)
	assert.Equal(t, "open", created["status"])
	assert.Equal(t, "high", created["priority"])

	listReq := httptest.NewRequest(nethttp.MethodGet, "/users/me/issues", nil)
	listReq.Header.Set("Authorization", "Bearer "+token)

	resp, body = env.do(t, listReq)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	issues := body["data"].([]any)
	require.Len(t, issues, 1)
	issue := issues[0].(map[string]any)
	assert.Equal(t, "high", issue["priority"])
	assert.Equal(t, "open", issue["status"])
	assert.Equal(t, "pothole", issue["category"])
}

func TestIssuePhotoUpload(t *testing.T) {
	env := newTestEnv(t)
	token := env.signupAndLogin(t, "Demo Citizen", "demo@citizen.com", "demo-secret", domain.UserRoleCitizen)

	buf, contentType := multipartBody(t, map[string]string{
		"title":       "Overflowing bin",
		"description": "Garbage bin at the park entrance has not been emptied.",
		"category":    "garbage",
	}, "photo", "bin.jpg", []byte("fake-jpeg-bytes"))

	req := httptest.NewRequest(nethttp.MethodPost, "/issues", buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, body := env.do(t, req)
	require.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	created := body["data"].(map[string]any)
	require.Contains(t, created, "photo_path")
	require.Len(t, env.store.saved, 1)
	assert.Contains(t, created["photo_path"], env.store.saved[0])
}

func TestIssuePhotoNotStoredWhenValidationFails(t *testing.T) {
	env := newTestEnv(t)
	token := env.signupAndLogin(t, "Demo Citizen", "demo@citizen.com", "demo-secret", domain.UserRoleCitizen)

	buf, contentType := multipartBody(t, map[string]string{
		"title":       "ab",
		"description": "Garbage bin at the park entrance has not been emptied.",
		"category":    "garbage",
	}, "photo", "bin.jpg", []byte("fake-jpeg-bytes"))

	req := httptest.NewRequest(nethttp.MethodPost, "/issues", buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, body := env.do(t, req)
	require.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", body["error"].(map[string]any)["code"])
	assert.Empty(t, env.store.saved, "rejected report must not persist its photo")
}

func TestIssuePhotoRejectsDisallowedExtension(t *testing.T) {
	env := newTestEnv(t)
	token := env.signupAndLogin(t, "Demo Citizen", "demo@citizen.com", "demo-secret", domain.UserRoleCitizen)

	buf, contentType := multipartBody(t, map[string]string{
		"title":       "Overflowing bin",
		"description": "Garbage bin at the park entrance has not been emptied.",
		"category":    "garbage",
	}, "photo", "payload.exe", []byte("not-an-image"))

	req := httptest.NewRequest(nethttp.MethodPost, "/issues", buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, body := env.do(t, req)
	require.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", body["error"].(map[string]any)["code"])
	assert.Empty(t, env.store.saved)
}

func TestAuthVerify(t *testing.T) {
	env := newTestEnv(t)
	token := env.signupAndLogin(t, "Demo Citizen", "demo@citizen.com", "demo-secret", domain.UserRoleCitizen)

	req := httptest.NewRequest(nethttp.MethodGet, "/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, body := env.do(t, req)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	user := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "demo@citizen.com", user["email"])
	assert.Equal(t, "citizen", user["role"])
}

func TestUnauthenticatedResponsesAreUniform(t *testing.T) {
	env := newTestEnv(t)

	cases := map[string]func() *nethttp.Request{
		"missing header": func() *nethttp.Request {
			return httptest.NewRequest(nethttp.MethodGet, "/auth/verify", nil)
		},
		"malformed header": func() *nethttp.Request {
			req := httptest.NewRequest(nethttp.MethodGet, "/auth/verify", nil)
			req.Header.Set("Authorization", "Token abc")
			return req
		},
		"garbage token": func() *nethttp.Request {
			req := httptest.NewRequest(nethttp.MethodGet, "/auth/verify", nil)
			req.Header.Set("Authorization", "Bearer garbage")
			return req
		},
	}

	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			resp, body := env.do(t, build())
			require.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "UNAUTHORIZED", errObj["code"])
			assert.Equal(t, "invalid or expired token", errObj["message"])
		})
	}
}

func TestAdminGates(t *testing.T) {
	env := newTestEnv(t)
	citizenToken := env.signupAndLogin(t, "Demo Citizen", "demo@citizen.com", "demo-secret", domain.UserRoleCitizen)
	adminToken := env.signupAndLogin(t, "Administrator", "admin@civicfix.com", "admin-secret", domain.UserRoleAdmin)

	// citizen submits an issue
	buf, contentType := multipartBody(t, map[string]string{
		"title":       "Dark street corner",
		"description": "Streetlight out at Oak and 3rd for two nights.",
		"category":    "streetlight",
	}, "", "", nil)
	req := httptest.NewRequest(nethttp.MethodPost, "/issues", buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+citizenToken)
	resp, body := env.do(t, req)
	require.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	issueID := body["data"].(map[string]any)["id"].(string)

	// citizen may not triage
	payload, _ := json.Marshal(map[string]string{"status": "in_progress"})
	patch := httptest.NewRequest(nethttp.MethodPatch, fmt.Sprintf("/issues/%s/status", issueID), bytes.NewReader(payload))
	patch.Header.Set("Content-Type", "application/json")
	patch.Header.Set("Authorization", "Bearer "+citizenToken)
	resp, body = env.do(t, patch)
	require.Equal(t, nethttp.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", body["error"].(map[string]any)["code"])

	// admin may
	patch = httptest.NewRequest(nethttp.MethodPatch, fmt.Sprintf("/issues/%s/status", issueID), bytes.NewReader(payload))
	patch.Header.Set("Content-Type", "application/json")
	patch.Header.Set("Authorization", "Bearer "+adminToken)
	resp, body = env.do(t, patch)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "in_progress", body["data"].(map[string]any)["status"])

	// resolve shortcut
	resolve := httptest.NewRequest(nethttp.MethodPatch, fmt.Sprintf("/issues/%s/resolve", issueID), nil)
	resolve.Header.Set("Authorization", "Bearer "+adminToken)
	resp, body = env.do(t, resolve)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "resolved", body["data"].(map[string]any)["status"])

	// admin triage queue shows the citizen report
	queue := httptest.NewRequest(nethttp.MethodGet, "/admin/issues", nil)
	queue.Header.Set("Authorization", "Bearer "+adminToken)
	resp, body = env.do(t, queue)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.Len(t, body["data"].([]any), 1)

	// secure-test self check
	secure := httptest.NewRequest(nethttp.MethodDelete, "/admin/secure-test", nil)
	secure.Header.Set("Authorization", "Bearer "+citizenToken)
	resp, _ = env.do(t, secure)
	require.Equal(t, nethttp.StatusForbidden, resp.StatusCode)

	secure = httptest.NewRequest(nethttp.MethodDelete, "/admin/secure-test", nil)
	secure.Header.Set("Authorization", "Bearer "+adminToken)
	resp, body = env.do(t, secure)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["data"].(map[string]any)["admin_access"])

	// delete
	del := httptest.NewRequest(nethttp.MethodDelete, "/issues/"+issueID, nil)
	del.Header.Set("Authorization", "Bearer "+adminToken)
	resp, _ = env.do(t, del)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)

	resp, body = env.do(t, httptest.NewRequest(nethttp.MethodGet, "/issues", nil))
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Empty(t, body["data"])
}

func TestPublicListFilters(t *testing.T) {
	env := newTestEnv(t)
	citizenToken := env.signupAndLogin(t, "Demo Citizen", "demo@citizen.com", "demo-secret", domain.UserRoleCitizen)
	adminToken := env.signupAndLogin(t, "Administrator", "admin@civicfix.com", "admin-secret", domain.UserRoleAdmin)

	submit := func(token, title, category string) {
		buf, contentType := multipartBody(t, map[string]string{
			"title":       title,
			"description": "Long enough description for the validator to pass.",
			"category":    category,
		}, "", "", nil)
		req := httptest.NewRequest(nethttp.MethodPost, "/issues", buf)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, _ := env.do(t, req)
		require.Equal(t, nethttp.StatusCreated, resp.StatusCode)
	}

	submit(citizenToken, "Citizen pothole", "pothole")
	submit(adminToken, "Admin-logged garbage", "garbage")

	resp, body := env.do(t, httptest.NewRequest(nethttp.MethodGet, "/issues", nil))
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"].([]any), 2)

	resp, body = env.do(t, httptest.NewRequest(nethttp.MethodGet, "/issues?category=pothole", nil))
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.Len(t, body["data"].([]any), 1)
	first := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "Citizen pothole", first["title"])
	// public listing carries the reporter
	reporter := first["reporter"].(map[string]any)
	assert.Equal(t, "demo@citizen.com", reporter["email"])

	resp, body = env.do(t, httptest.NewRequest(nethttp.MethodGet, "/issues?citizen_only=true", nil))
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	require.Len(t, body["data"].([]any), 1)
	assert.Equal(t, "Citizen pothole", body["data"].([]any)[0].(map[string]any)["title"])
}

func TestClassifyEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.signupAndLogin(t, "Demo Citizen", "demo@citizen.com", "demo-secret", domain.UserRoleCitizen)

	buf, contentType := multipartBody(t, nil, "image", "scene.jpg", []byte("fake-image"))
	req := httptest.NewRequest(nethttp.MethodPost, "/ai/classify", buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, body := env.do(t, req)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "predicted_type")
	assert.Contains(t, body, "confidence")
	predictions := body["all_predictions"].(map[string]any)
	assert.Len(t, predictions, 4)

	// classification requires authentication
	unauth := httptest.NewRequest(nethttp.MethodPost, "/ai/classify", nil)
	resp, _ = env.do(t, unauth)
	require.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
}
