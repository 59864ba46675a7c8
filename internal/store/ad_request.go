package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adamara/apiserver/types"
	"github.com/google/uuid"
)

const adRequestColumns = `id, requester_name, requester_email, requester_department, requester_phone,
		ad_type, ad_purpose, target_audience, desired_placement, budget,
		request_date, desired_completion_date, ad_title, ad_description, special_instructions,
		files, status, assigned_to, admin_notes, last_updated, created_at`

// AdRequestUpdate is a partial update applied atomically to one request.
// Nil fields are left untouched; Notes are appended in order.
type AdRequestUpdate struct {
	Status      *types.RequestStatus
	AssignedTo  *uuid.UUID
	Notes       []types.AdminNote
	LastUpdated time.Time
}

// AdRequestRepository handles persistence for ad requests.
type AdRequestRepository struct {
	db *sql.DB
}

func NewAdRequestRepository(db *sql.DB) *AdRequestRepository {
	return &AdRequestRepository{db: db}
}

func (r *AdRequestRepository) Create(ctx context.Context, req types.AdRequest) (types.AdRequest, error) {
	if req.Files == nil {
		req.Files = []types.FileRef{}
	}
	if req.AdminNotes == nil {
		req.AdminNotes = []types.AdminNote{}
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = req.RequestDate
	}

	filesJSON, err := json.Marshal(req.Files)
	if err != nil {
		return types.AdRequest{}, err
	}
	notesJSON, err := json.Marshal(req.AdminNotes)
	if err != nil {
		return types.AdRequest{}, err
	}

	var budget sql.NullFloat64
	if req.Budget != nil {
		budget = sql.NullFloat64{Float64: *req.Budget, Valid: true}
	}
	var assignedTo uuid.NullUUID
	if req.AssignedTo != nil {
		assignedTo = uuid.NullUUID{UUID: *req.AssignedTo, Valid: true}
	}

	const query = `
		INSERT INTO ad_requests (
			id, requester_name, requester_email, requester_department, requester_phone,
			ad_type, ad_purpose, target_audience, desired_placement, budget,
			request_date, desired_completion_date, ad_title, ad_description, special_instructions,
			files, status, assigned_to, admin_notes, last_updated, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		req.ID,
		req.RequesterName,
		req.RequesterEmail,
		req.RequesterDepartment,
		req.RequesterPhone,
		string(req.AdType),
		req.AdPurpose,
		req.TargetAudience,
		req.DesiredPlacement,
		budget,
		req.RequestDate,
		req.DesiredCompletionDate,
		req.AdTitle,
		req.AdDescription,
		req.SpecialInstructions,
		filesJSON,
		string(req.Status),
		assignedTo,
		notesJSON,
		req.LastUpdated,
		req.CreatedAt,
	); err != nil {
		return types.AdRequest{}, mapWriteError(err)
	}
	return req, nil
}

func (r *AdRequestRepository) Get(ctx context.Context, id uuid.UUID) (types.AdRequest, error) {
	const query = `SELECT ` + adRequestColumns + ` FROM ad_requests WHERE id = $1`
	return scanAdRequest(r.db.QueryRowContext(ctx, query, id))
}

// List returns one page of matching requests and the total number of
// matches across all pages.
func (r *AdRequestRepository) List(ctx context.Context, filter AdRequestFilter, sort AdRequestSort, offset, limit int) ([]types.AdRequest, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	where, args := filter.where(nil)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM ad_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(
		`SELECT %s FROM ad_requests%s ORDER BY %s OFFSET $%d LIMIT $%d`,
		adRequestColumns, where, sort.orderBy(), len(args)+1, len(args)+2,
	)
	args = append(args, offset, limit)

	items, err := r.query(ctx, query, args, limit)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListAfter returns up to limit matching requests ordered newest first,
// strictly after the cursor when one is given. It backs batched exports.
func (r *AdRequestRepository) ListAfter(ctx context.Context, filter AdRequestFilter, after *ExportCursor, limit int) ([]types.AdRequest, error) {
	if limit < 1 {
		limit = 500
	}

	where, args := filter.where(nil)
	if after != nil {
		args = append(args, after.RequestDate, after.ID)
		keyset := fmt.Sprintf("(request_date, id) < ($%d, $%d)", len(args)-1, len(args))
		if where == "" {
			where = " WHERE " + keyset
		} else {
			where += " AND " + keyset
		}
	}

	query := fmt.Sprintf(
		`SELECT %s FROM ad_requests%s ORDER BY request_date DESC, id DESC LIMIT $%d`,
		adRequestColumns, where, len(args)+1,
	)
	args = append(args, limit)
	return r.query(ctx, query, args, limit)
}

// Update applies the change in a single statement and returns the
// resulting request.
func (r *AdRequestRepository) Update(ctx context.Context, id uuid.UUID, change AdRequestUpdate) (types.AdRequest, error) {
	var status sql.NullString
	if change.Status != nil {
		status = sql.NullString{String: string(*change.Status), Valid: true}
	}
	var assignedTo uuid.NullUUID
	if change.AssignedTo != nil {
		assignedTo = uuid.NullUUID{UUID: *change.AssignedTo, Valid: true}
	}
	notes := change.Notes
	if notes == nil {
		notes = []types.AdminNote{}
	}
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return types.AdRequest{}, err
	}

	const query = `
		UPDATE ad_requests
		SET status = COALESCE($1, status),
			assigned_to = COALESCE($2, assigned_to),
			admin_notes = admin_notes || $3::jsonb,
			last_updated = $4
		WHERE id = $5
		RETURNING ` + adRequestColumns
	return scanAdRequest(r.db.QueryRowContext(ctx, query, status, assignedTo, notesJSON, change.LastUpdated, id))
}

func (r *AdRequestRepository) query(ctx context.Context, query string, args []any, capacity int) ([]types.AdRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]types.AdRequest, 0, capacity)
	for rows.Next() {
		item, err := scanAdRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanAdRequest(row rowScanner) (types.AdRequest, error) {
	var req types.AdRequest
	var adType, status string
	var budget sql.NullFloat64
	var assignedTo uuid.NullUUID
	var filesJSON, notesJSON []byte
	err := row.Scan(
		&req.ID,
		&req.RequesterName,
		&req.RequesterEmail,
		&req.RequesterDepartment,
		&req.RequesterPhone,
		&adType,
		&req.AdPurpose,
		&req.TargetAudience,
		&req.DesiredPlacement,
		&budget,
		&req.RequestDate,
		&req.DesiredCompletionDate,
		&req.AdTitle,
		&req.AdDescription,
		&req.SpecialInstructions,
		&filesJSON,
		&status,
		&assignedTo,
		&notesJSON,
		&req.LastUpdated,
		&req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AdRequest{}, ErrNotFound
		}
		return types.AdRequest{}, err
	}

	req.AdType = types.AdType(adType)
	req.Status = types.RequestStatus(status)
	if budget.Valid {
		b := budget.Float64
		req.Budget = &b
	}
	if assignedTo.Valid {
		id := assignedTo.UUID
		req.AssignedTo = &id
	}
	if err := json.Unmarshal(filesJSON, &req.Files); err != nil {
		return types.AdRequest{}, fmt.Errorf("decode files: %w", err)
	}
	if err := json.Unmarshal(notesJSON, &req.AdminNotes); err != nil {
		return types.AdRequest{}, fmt.Errorf("decode admin notes: %w", err)
	}
	if req.Files == nil {
		req.Files = []types.FileRef{}
	}
	if req.AdminNotes == nil {
		req.AdminNotes = []types.AdminNote{}
	}
	return req, nil
}
