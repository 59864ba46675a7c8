package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adamara/apiserver/internal/auth"
	"github.com/adamara/apiserver/internal/logging"
	"github.com/adamara/apiserver/internal/notify"
	"github.com/adamara/apiserver/internal/services"
	"github.com/adamara/apiserver/internal/storage"
	"github.com/adamara/apiserver/internal/store"
	"github.com/adamara/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memRequests struct {
	mu    sync.Mutex
	items []types.AdRequest
}

func (m *memRequests) Create(_ context.Context, req types.AdRequest) (types.AdRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, req)
	return req, nil
}

func (m *memRequests) Get(_ context.Context, id uuid.UUID) (types.AdRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.items {
		if req.ID == id {
			return req, nil
		}
	}
	return types.AdRequest{}, store.ErrNotFound
}

func (m *memRequests) matching(filter store.AdRequestFilter) []types.AdRequest {
	var out []types.AdRequest
	for _, req := range m.items {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.Department != "" && req.RequesterDepartment != filter.Department {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(req.RequesterName+" "+req.RequesterEmail), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, req)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RequestDate.After(out[j].RequestDate) })
	return out
}

func (m *memRequests) List(_ context.Context, filter store.AdRequestFilter, _ store.AdRequestSort, offset, limit int) ([]types.AdRequest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.matching(filter)
	items := []types.AdRequest{}
	for i := offset; i < len(all) && i < offset+limit; i++ {
		items = append(items, all[i])
	}
	return items, len(all), nil
}

func (m *memRequests) ListAfter(_ context.Context, filter store.AdRequestFilter, after *store.ExportCursor, limit int) ([]types.AdRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if after != nil {
		return nil, nil
	}
	all := m.matching(filter)
	return all[:min(limit, len(all))], nil
}

func (m *memRequests) Update(_ context.Context, id uuid.UUID, change store.AdRequestUpdate) (types.AdRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, req := range m.items {
		if req.ID != id {
			continue
		}
		if change.Status != nil {
			req.Status = *change.Status
		}
		if change.AssignedTo != nil {
			req.AssignedTo = change.AssignedTo
		}
		req.AdminNotes = append(append([]types.AdminNote{}, req.AdminNotes...), change.Notes...)
		req.LastUpdated = change.LastUpdated
		m.items[i] = req
		return req, nil
	}
	return types.AdRequest{}, store.ErrNotFound
}

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]types.User
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) List(_ context.Context, includeInactive bool) ([]types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []types.User{}
	for _, u := range m.users {
		if u.Active || includeInactive {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = uuid.New()
	m.users[user.ID] = user
	return user, nil
}

func (m *memUsers) Update(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memUsers) TouchLastLogin(context.Context, uuid.UUID, time.Time) error { return nil }

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjects) PresignGet(context.Context, string, time.Duration) (string, bool, error) {
	return "", false, nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, notify.Event) {}

// testAPI is the full router over in-memory repositories.
type testAPI struct {
	router   http.Handler
	users    *memUsers
	requests *memRequests
	objects  *memObjects
	tokens   *auth.TokenIssuer
	admin    types.User
	reviewer types.User
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := logging.Discard()

	hash, err := auth.HashPassword("admin-password")
	require.NoError(t, err)
	admin := types.User{ID: uuid.New(), Name: "Ada Admin", Email: "ada@example.com", PasswordHash: hash, Role: types.RoleAdmin, Active: true}
	reviewer := types.User{ID: uuid.New(), Name: "Rex Reviewer", Email: "rex@example.com", PasswordHash: hash, Role: types.RoleReviewer, Active: true}

	api := &testAPI{
		users:    &memUsers{users: map[uuid.UUID]types.User{admin.ID: admin, reviewer.ID: reviewer}},
		requests: &memRequests{},
		objects:  &memObjects{objects: map[string][]byte{}},
		tokens:   auth.NewTokenIssuer("test-secret", time.Hour),
		admin:    admin,
		reviewer: reviewer,
	}

	userService := services.NewUserService(api.users, logger)
	attachments := services.NewAttachmentService(api.objects, services.AttachmentLimits{}, logger)
	requests := services.NewAdRequestService(api.requests, api.users, attachments, nopNotifier{}, logger)

	authHandler := NewAuthHandler(userService, api.tokens, logger)
	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, authHandler)
	})
	router.Route("/requests", func(r chi.Router) {
		AdRequestRouter(r, NewAdRequestHandler(requests, attachments, logger), authHandler.RequireAuth)
	})
	router.Route("/files", func(r chi.Router) {
		FileRouter(r, NewFileHandler(attachments, logger), authHandler.RequireAuth)
	})
	router.Route("/users", func(r chi.Router) {
		UserRouter(r, NewUserHandler(userService, logger), authHandler.RequireAuth)
	})
	api.router = router
	return api
}

func (a *testAPI) token(t *testing.T, user types.User) string {
	t.Helper()
	token, err := a.tokens.Issue(user)
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}
