package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/adamara/apiserver/internal/metrics"
	"github.com/adamara/apiserver/internal/notify"
	"github.com/adamara/apiserver/internal/store"
	"github.com/adamara/apiserver/types"
	"github.com/google/uuid"
)

const (
	DefaultPageSize        = 10
	MaxPageSize            = 100
	DefaultExportBatchSize = 500
	MaxPage                = 1_000_000

	maxNoteLength = 5000
	maxBudget     = 1e12
)

// budgetPattern matches amounts the budget column stores exactly.
var budgetPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// AdRequestRepository defines persistence operations for ad requests.
type AdRequestRepository interface {
	Create(ctx context.Context, req types.AdRequest) (types.AdRequest, error)
	Get(ctx context.Context, id uuid.UUID) (types.AdRequest, error)
	List(ctx context.Context, filter store.AdRequestFilter, sort store.AdRequestSort, offset, limit int) ([]types.AdRequest, int, error)
	ListAfter(ctx context.Context, filter store.AdRequestFilter, after *store.ExportCursor, limit int) ([]types.AdRequest, error)
	Update(ctx context.Context, id uuid.UUID, change store.AdRequestUpdate) (types.AdRequest, error)
}

// UserLookup resolves user references stored on requests.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
}

// NewAdRequest is the intake form as submitted by a requester. Dates and
// the budget arrive as text and are parsed during validation.
type NewAdRequest struct {
	RequesterName         string `json:"requesterName" validate:"required,max=200"`
	RequesterEmail        string `json:"requesterEmail" validate:"required,email,max=254"`
	RequesterDepartment   string `json:"requesterDepartment" validate:"required,max=200"`
	RequesterPhone        string `json:"requesterPhone" validate:"required,max=50"`
	AdType                string `json:"adType" validate:"required,oneof=print digital social video other"`
	AdPurpose             string `json:"adPurpose" validate:"required,max=2000"`
	TargetAudience        string `json:"targetAudience" validate:"max=2000"`
	DesiredPlacement      string `json:"desiredPlacement" validate:"max=500"`
	Budget                string `json:"budget"`
	DesiredCompletionDate string `json:"desiredCompletionDate" validate:"required"`
	AdTitle               string `json:"adTitle" validate:"max=200"`
	AdDescription         string `json:"adDescription" validate:"max=5000"`
	SpecialInstructions   string `json:"specialInstructions" validate:"max=5000"`
}

var newAdRequestMessages = fieldMessages{
	"requesterName.required":         "Requester name is required",
	"requesterEmail":                 "Please include a valid email",
	"requesterDepartment.required":   "Department is required",
	"requesterPhone.required":        "Phone number is required",
	"adType.required":                "Ad type is required",
	"adType.oneof":                   "Ad type must be one of print, digital, social, video, other",
	"adPurpose.required":             "Ad purpose is required",
	"desiredCompletionDate.required": "Completion date is required",
}

func (n *NewAdRequest) normalize() {
	n.RequesterName = strings.TrimSpace(n.RequesterName)
	n.RequesterEmail = strings.ToLower(strings.TrimSpace(n.RequesterEmail))
	n.RequesterDepartment = strings.TrimSpace(n.RequesterDepartment)
	n.RequesterPhone = strings.TrimSpace(n.RequesterPhone)
	n.AdType = strings.ToLower(strings.TrimSpace(n.AdType))
	n.AdPurpose = strings.TrimSpace(n.AdPurpose)
	n.TargetAudience = strings.TrimSpace(n.TargetAudience)
	n.DesiredPlacement = strings.TrimSpace(n.DesiredPlacement)
	n.Budget = strings.TrimSpace(n.Budget)
	n.DesiredCompletionDate = strings.TrimSpace(n.DesiredCompletionDate)
	n.AdTitle = strings.TrimSpace(n.AdTitle)
	n.AdDescription = strings.TrimSpace(n.AdDescription)
	n.SpecialInstructions = strings.TrimSpace(n.SpecialInstructions)
}

// UpdatePatch is a partial update of a request's review state. Absent or
// blank fields, status included, are left untouched.
type UpdatePatch struct {
	Status     *string `json:"status,omitempty"`
	AssignedTo *string `json:"assignedTo,omitempty"`
	Note       *string `json:"note,omitempty"`
}

// ListQuery carries the raw list and export query parameters.
type ListQuery struct {
	Status     string
	Search     string
	Department string
	StartDate  string
	EndDate    string
	Page       string
	Limit      string
	SortField  string
	SortOrder  string
}

// ListParams is a validated ListQuery.
type ListParams struct {
	Filter store.AdRequestFilter
	Sort   store.AdRequestSort
	Page   int
	Limit  int
}

// AdRequestPage is one page of list results.
type AdRequestPage struct {
	Items       []types.AdRequest `json:"items"`
	TotalCount  int               `json:"totalCount"`
	TotalPages  int               `json:"totalPages"`
	CurrentPage int               `json:"currentPage"`
}

// AdRequestService owns the lifecycle of ad requests.
type AdRequestService struct {
	repo        AdRequestRepository
	users       UserLookup
	attachments *AttachmentService
	notifier    notify.Notifier
	logger      *slog.Logger

	policy      types.TransitionPolicy
	metrics     *metrics.Metrics
	exportBatch int
	now         func() time.Time
}

// AdRequestOption configures an AdRequestService.
type AdRequestOption func(*AdRequestService)

// WithTransitionPolicy replaces the default permissive policy.
func WithTransitionPolicy(policy types.TransitionPolicy) AdRequestOption {
	return func(s *AdRequestService) { s.policy = policy }
}

func WithMetrics(m *metrics.Metrics) AdRequestOption {
	return func(s *AdRequestService) { s.metrics = m }
}

// WithExportBatchSize sets how many requests an export reads per query.
func WithExportBatchSize(n int) AdRequestOption {
	return func(s *AdRequestService) {
		if n > 0 {
			s.exportBatch = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AdRequestOption {
	return func(s *AdRequestService) { s.now = now }
}

func NewAdRequestService(
	repo AdRequestRepository,
	users UserLookup,
	attachments *AttachmentService,
	notifier notify.Notifier,
	logger *slog.Logger,
	opts ...AdRequestOption,
) *AdRequestService {
	s := &AdRequestService{
		repo:        repo,
		users:       users,
		attachments: attachments,
		notifier:    notifier,
		logger:      logger,
		policy:      types.PermissiveTransitions{},
		exportBatch: DefaultExportBatchSize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the submission and its attachments, stores the files
// and persists a new pending request. The requester is notified on a
// best-effort basis.
func (s *AdRequestService) Create(ctx context.Context, input NewAdRequest, uploads []Upload) (types.AdRequest, error) {
	input.normalize()
	now := s.now().UTC()

	verr := &ValidationError{}
	if err := validateStruct(input, newAdRequestMessages, verr); err != nil {
		return types.AdRequest{}, err
	}

	var completion time.Time
	if input.DesiredCompletionDate != "" {
		parsed, _, err := parseDate(input.DesiredCompletionDate)
		switch {
		case err != nil:
			verr.Add("desiredCompletionDate", "Completion date must be a valid date")
		case parsed.Before(startOfDay(now)):
			verr.Add("desiredCompletionDate", "Completion date cannot be in the past")
		default:
			completion = parsed
		}
	}

	var budget *float64
	if input.Budget != "" {
		value, err := strconv.ParseFloat(input.Budget, 64)
		switch {
		case err != nil || value < 0 || math.IsNaN(value) || math.IsInf(value, 0):
			verr.Add("budget", "Budget must be a non-negative number")
		case value >= maxBudget:
			verr.Add("budget", "Budget must be less than 1000000000000")
		case !budgetPattern.MatchString(input.Budget):
			verr.Add("budget", "Budget must be a plain amount with at most 2 decimal places")
		default:
			budget = &value
		}
	}

	s.attachments.validate(uploads, verr)
	if err := verr.Err(); err != nil {
		return types.AdRequest{}, err
	}

	files, err := s.attachments.Store(ctx, uploads)
	if err != nil {
		return types.AdRequest{}, err
	}

	req := types.AdRequest{
		ID:                    uuid.New(),
		RequesterName:         input.RequesterName,
		RequesterEmail:        input.RequesterEmail,
		RequesterDepartment:   input.RequesterDepartment,
		RequesterPhone:        input.RequesterPhone,
		AdType:                types.AdType(input.AdType),
		AdPurpose:             input.AdPurpose,
		TargetAudience:        input.TargetAudience,
		DesiredPlacement:      input.DesiredPlacement,
		Budget:                budget,
		RequestDate:           now,
		DesiredCompletionDate: completion,
		AdTitle:               input.AdTitle,
		AdDescription:         input.AdDescription,
		SpecialInstructions:   input.SpecialInstructions,
		Files:                 files,
		Status:                types.StatusPending,
		AdminNotes:            []types.AdminNote{},
		LastUpdated:           now,
		CreatedAt:             now,
	}

	created, err := s.repo.Create(ctx, req)
	if err != nil {
		s.attachments.DeleteAll(context.WithoutCancel(ctx), files)
		return types.AdRequest{}, fmt.Errorf("create ad request: %w", err)
	}

	s.metrics.RequestCreated()
	s.logger.InfoContext(ctx, "ad request created",
		"requestId", created.ID, "adType", created.AdType, "files", len(created.Files))
	s.notifier.Notify(ctx, notify.Confirmation(created))
	return created, nil
}

// Get returns a request. Malformed and unknown ids both yield ErrNotFound.
func (s *AdRequestService) Get(ctx context.Context, id string) (types.AdRequest, error) {
	requestID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return types.AdRequest{}, ErrNotFound
	}
	return s.repo.Get(ctx, requestID)
}

// Authorize returns the request when actor may act on it: admins on any
// request, reviewers only on requests assigned to them.
func (s *AdRequestService) Authorize(ctx context.Context, actor types.User, id string) (types.AdRequest, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return types.AdRequest{}, err
	}
	if actor.IsAdmin() || req.IsAssignedTo(actor.ID) {
		return req, nil
	}
	return types.AdRequest{}, ErrForbidden
}

// Detail resolves the assignee and note authors of req. References that
// no longer resolve are left nil.
func (s *AdRequestService) Detail(ctx context.Context, req types.AdRequest) (types.AdRequestDetail, error) {
	cache := map[uuid.UUID]*types.UserSummary{}
	resolve := func(id uuid.UUID) (*types.UserSummary, error) {
		if summary, ok := cache[id]; ok {
			return summary, nil
		}
		user, err := s.users.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				cache[id] = nil
				return nil, nil
			}
			return nil, err
		}
		summary := user.Summary()
		cache[id] = &summary
		return &summary, nil
	}

	detail := types.AdRequestDetail{
		AdRequest:  req,
		AdminNotes: make([]types.AdminNoteDetail, 0, len(req.AdminNotes)),
	}
	if req.AssignedTo != nil {
		assignee, err := resolve(*req.AssignedTo)
		if err != nil {
			return types.AdRequestDetail{}, fmt.Errorf("resolve assignee: %w", err)
		}
		detail.Assignee = assignee
	}
	for _, note := range req.AdminNotes {
		author, err := resolve(note.AuthorID)
		if err != nil {
			return types.AdRequestDetail{}, fmt.Errorf("resolve note author: %w", err)
		}
		detail.AdminNotes = append(detail.AdminNotes, types.AdminNoteDetail{AdminNote: note, Author: author})
	}
	return detail, nil
}

// ParseListQuery validates list and export parameters.
func (s *AdRequestService) ParseListQuery(q ListQuery) (ListParams, error) {
	verr := &ValidationError{}
	params := ListParams{
		Page:  1,
		Limit: DefaultPageSize,
		Sort:  store.DefaultSort,
	}

	if status := strings.TrimSpace(q.Status); status != "" {
		if !types.RequestStatus(status).Valid() {
			verr.Addf("status", "Status must be one of %s", joinStatuses())
		}
		params.Filter.Status = types.RequestStatus(status)
	}
	params.Filter.Department = strings.TrimSpace(q.Department)
	params.Filter.Search = strings.TrimSpace(q.Search)

	if start := strings.TrimSpace(q.StartDate); start != "" {
		from, dateOnly, err := parseDate(start)
		if err != nil {
			verr.Add("startDate", "Start date must be a valid date")
		} else {
			if dateOnly {
				from = startOfDay(from)
			}
			params.Filter.From = &from
		}
	}
	if end := strings.TrimSpace(q.EndDate); end != "" {
		to, dateOnly, err := parseDate(end)
		if err != nil {
			verr.Add("endDate", "End date must be a valid date")
		} else {
			if dateOnly {
				to = startOfDay(to).AddDate(0, 0, 1).Add(-time.Microsecond)
			}
			params.Filter.To = &to
		}
	}
	if params.Filter.From != nil && params.Filter.To != nil && params.Filter.To.Before(*params.Filter.From) {
		verr.Add("endDate", "End date must not be before start date")
	}

	if page := strings.TrimSpace(q.Page); page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 || n > MaxPage {
			verr.Addf("page", "Page must be an integer between 1 and %d", MaxPage)
		} else {
			params.Page = n
		}
	}
	if limit := strings.TrimSpace(q.Limit); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			verr.Add("limit", "Limit must be a positive integer")
		} else {
			params.Limit = min(n, MaxPageSize)
		}
	}

	if field := strings.TrimSpace(q.SortField); field != "" {
		if !store.SortableField(field) {
			verr.Addf("sortField", "Cannot sort by %q", field)
		} else {
			params.Sort.Field = field
		}
	}
	params.Sort.Desc = !strings.EqualFold(strings.TrimSpace(q.SortOrder), "asc")

	if err := verr.Err(); err != nil {
		return ListParams{}, err
	}
	return params, nil
}

// List returns one page of matching requests with the total match count.
func (s *AdRequestService) List(ctx context.Context, params ListParams) (AdRequestPage, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = DefaultPageSize
	}
	params.Limit = min(params.Limit, MaxPageSize)
	if params.Page > MaxPage {
		verr := &ValidationError{}
		verr.Addf("page", "Page must be an integer between 1 and %d", MaxPage)
		return AdRequestPage{}, verr.Err()
	}

	items, total, err := s.repo.List(ctx, params.Filter, params.Sort, (params.Page-1)*params.Limit, params.Limit)
	if err != nil {
		return AdRequestPage{}, fmt.Errorf("list ad requests: %w", err)
	}
	return AdRequestPage{
		Items:       items,
		TotalCount:  total,
		TotalPages:  (total + params.Limit - 1) / params.Limit,
		CurrentPage: params.Page,
	}, nil
}

// Update applies patch on behalf of actor. The caller is responsible for
// authorizing actor with Authorize. Every successful update bumps
// lastUpdated, including one that changes nothing else.
func (s *AdRequestService) Update(ctx context.Context, actor types.User, id string, patch UpdatePatch) (types.AdRequest, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return types.AdRequest{}, err
	}

	now := s.now().UTC()
	change := store.AdRequestUpdate{LastUpdated: now}
	verr := &ValidationError{}

	if patch.Status != nil && strings.TrimSpace(*patch.Status) != "" {
		status := types.RequestStatus(strings.TrimSpace(*patch.Status))
		if !status.Valid() {
			verr.Addf("status", "Status must be one of %s", joinStatuses())
		} else {
			change.Status = &status
		}
	}

	if patch.AssignedTo != nil && strings.TrimSpace(*patch.AssignedTo) != "" {
		assigneeID, err := uuid.Parse(strings.TrimSpace(*patch.AssignedTo))
		if err != nil {
			verr.Add("assignedTo", "Assigned user does not exist")
		} else {
			assignee, err := s.users.GetByID(ctx, assigneeID)
			switch {
			case errors.Is(err, store.ErrNotFound):
				verr.Add("assignedTo", "Assigned user does not exist")
			case err != nil:
				return types.AdRequest{}, fmt.Errorf("look up assignee: %w", err)
			case !assignee.Active:
				verr.Add("assignedTo", "Assigned user is not active")
			default:
				change.AssignedTo = &assigneeID
			}
		}
	}

	if patch.Note != nil {
		text := strings.TrimSpace(*patch.Note)
		switch {
		case len(text) > maxNoteLength:
			verr.Addf("note", "Note must be at most %d characters", maxNoteLength)
		case text != "":
			change.Notes = []types.AdminNote{{Text: text, AuthorID: actor.ID, CreatedAt: now}}
		}
	}

	if err := verr.Err(); err != nil {
		return types.AdRequest{}, err
	}

	if change.Status != nil && !s.policy.Allowed(current.Status, *change.Status) {
		return types.AdRequest{}, &ConflictError{
			Reason: fmt.Sprintf("cannot move request from %s to %s", current.Status, *change.Status),
		}
	}

	updated, err := s.repo.Update(ctx, current.ID, change)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.AdRequest{}, err
		}
		return types.AdRequest{}, fmt.Errorf("update ad request: %w", err)
	}

	s.logger.InfoContext(ctx, "ad request updated",
		"requestId", updated.ID, "actor", actor.ID, "status", updated.Status)
	if updated.Status != current.Status {
		s.metrics.StatusChanged(string(updated.Status))
		s.notifier.Notify(ctx, notify.StatusUpdate(updated))
	}
	return updated, nil
}

// Export streams every request matching filter, newest first, to fn. The
// store is read in batches so only one batch is held at a time.
func (s *AdRequestService) Export(ctx context.Context, filter store.AdRequestFilter, fn func(types.AdRequest) error) error {
	var (
		cursor *store.ExportCursor
		total  int
	)
	defer func() { s.metrics.Exported(total) }()

	for {
		batch, err := s.repo.ListAfter(ctx, filter, cursor, s.exportBatch)
		if err != nil {
			return fmt.Errorf("export ad requests: %w", err)
		}
		for _, req := range batch {
			if err := fn(req); err != nil {
				return err
			}
			total++
		}
		if len(batch) < s.exportBatch {
			return nil
		}
		last := batch[len(batch)-1]
		cursor = &store.ExportCursor{RequestDate: last.RequestDate, ID: last.ID}
	}
}

func joinStatuses() string {
	names := make([]string, len(types.Statuses))
	for i, status := range types.Statuses {
		names[i] = string(status)
	}
	return strings.Join(names, ", ")
}
