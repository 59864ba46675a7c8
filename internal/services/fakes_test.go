package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adamara/apiserver/internal/logging"
	"github.com/adamara/apiserver/internal/notify"
	"github.com/adamara/apiserver/internal/storage"
	"github.com/adamara/apiserver/internal/store"
	"github.com/adamara/apiserver/types"
	"github.com/google/uuid"
)

var fixedNow = time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// memRequests is an in-memory AdRequestRepository with the same filter
// semantics as the SQL repository.
type memRequests struct {
	mu        sync.Mutex
	items     map[uuid.UUID]types.AdRequest
	createErr error
	updates   []store.AdRequestUpdate
	batches   []int
}

func newMemRequests() *memRequests {
	return &memRequests{items: map[uuid.UUID]types.AdRequest{}}
}

func (m *memRequests) Create(_ context.Context, req types.AdRequest) (types.AdRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return types.AdRequest{}, m.createErr
	}
	m.items[req.ID] = req
	return req, nil
}

func (m *memRequests) Get(_ context.Context, id uuid.UUID) (types.AdRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.items[id]
	if !ok {
		return types.AdRequest{}, store.ErrNotFound
	}
	return req, nil
}

func (m *memRequests) matching(filter store.AdRequestFilter) []types.AdRequest {
	out := []types.AdRequest{}
	search := strings.ToLower(filter.Search)
	for _, req := range m.items {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.Department != "" && req.RequesterDepartment != filter.Department {
			continue
		}
		if filter.From != nil && req.RequestDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && req.RequestDate.After(*filter.To) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(req.RequesterName), search) &&
			!strings.Contains(strings.ToLower(req.RequesterEmail), search) {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestDate.Equal(out[j].RequestDate) {
			return out[i].RequestDate.After(out[j].RequestDate)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out
}

func (m *memRequests) List(_ context.Context, filter store.AdRequestFilter, _ store.AdRequestSort, offset, limit int) ([]types.AdRequest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.matching(filter)
	if offset >= len(all) {
		return []types.AdRequest{}, len(all), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

func (m *memRequests) ListAfter(_ context.Context, filter store.AdRequestFilter, after *store.ExportCursor, limit int) ([]types.AdRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.matching(filter)
	start := 0
	if after != nil {
		start = len(all)
		for i, req := range all {
			if req.RequestDate.Before(after.RequestDate) ||
				(req.RequestDate.Equal(after.RequestDate) && req.ID.String() < after.ID.String()) {
				start = i
				break
			}
		}
	}
	end := min(start+limit, len(all))
	batch := append([]types.AdRequest(nil), all[start:end]...)
	m.batches = append(m.batches, len(batch))
	return batch, nil
}

func (m *memRequests) Update(_ context.Context, id uuid.UUID, change store.AdRequestUpdate) (types.AdRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.items[id]
	if !ok {
		return types.AdRequest{}, store.ErrNotFound
	}
	m.updates = append(m.updates, change)
	if change.Status != nil {
		req.Status = *change.Status
	}
	if change.AssignedTo != nil {
		assignee := *change.AssignedTo
		req.AssignedTo = &assignee
	}
	req.AdminNotes = append(append([]types.AdminNote{}, req.AdminNotes...), change.Notes...)
	req.LastUpdated = change.LastUpdated
	m.items[id] = req
	return req, nil
}

// memUsers is an in-memory UserRepository.
type memUsers struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]types.User
	touched []uuid.UUID
}

func newMemUsers(users ...types.User) *memUsers {
	m := &memUsers{byID: map[uuid.UUID]types.User{}}
	for _, u := range users {
		m.byID[u.ID] = u
	}
	return m
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) List(_ context.Context, includeInactive bool) ([]types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []types.User{}
	for _, u := range m.byID {
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
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, user.Email) {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = fixedNow
	user.UpdatedAt = fixedNow
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUsers) Update(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUsers) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LastLogin = &at
	m.byID[id] = u
	m.touched = append(m.touched, id)
	return nil
}

// memObjects is an in-memory ObjectStore.
type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut int
	puts    int
	presign bool
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.failPut > 0 && m.puts == m.failPut {
		return errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
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

func (m *memObjects) PresignGet(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if !m.presign {
		return "", false, nil
	}
	return "https://objects.example.com/" + key + "?ttl=" + ttl.String(), true, nil
}

func (m *memObjects) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// recordingNotifier captures events synchronously.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]notify.Kind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

type fixture struct {
	requests *memRequests
	users    *memUsers
	objects  *memObjects
	notifier *recordingNotifier
	svc      *AdRequestService
	admin    types.User
	reviewer types.User
}

func newFixture(opts ...AdRequestOption) *fixture {
	admin := types.User{ID: uuid.New(), Name: "Ada Admin", Email: "ada@example.com", Role: types.RoleAdmin, Active: true}
	reviewer := types.User{ID: uuid.New(), Name: "Rex Reviewer", Email: "rex@example.com", Role: types.RoleReviewer, Active: true}

	f := &fixture{
		requests: newMemRequests(),
		users:    newMemUsers(admin, reviewer),
		objects:  newMemObjects(),
		notifier: &recordingNotifier{},
		admin:    admin,
		reviewer: reviewer,
	}
	logger := logging.Discard()
	attachments := NewAttachmentService(f.objects, AttachmentLimits{}, logger)
	opts = append([]AdRequestOption{WithClock(fixedClock)}, opts...)
	f.svc = NewAdRequestService(f.requests, f.users, attachments, f.notifier, logger, opts...)
	return f
}

func validInput() NewAdRequest {
	return NewAdRequest{
		RequesterName:         "Jane Doe",
		RequesterEmail:        "Jane@Example.com",
		RequesterDepartment:   "Marketing",
		RequesterPhone:        "555-0100",
		AdType:                "digital",
		AdPurpose:             "Spring campaign",
		DesiredCompletionDate: fixedNow.AddDate(0, 0, 14).Format("2006-01-02"),
	}
}

func pdfUpload(name string) Upload {
	body := []byte("%PDF-1.4 test")
	return Upload{Filename: name, ContentType: "application/pdf", Size: int64(len(body)), Content: bytes.NewReader(body)}
}

func strPtr(s string) *string { return &s }
