package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/adamara/apiserver/types"
	"github.com/google/uuid"
)

// AdRequestFilter is a conjunction of optional predicates over requests.
// Zero-valued fields do not constrain the result.
type AdRequestFilter struct {
	Status     types.RequestStatus
	Department string
	// From and To bound requestDate inclusively.
	From *time.Time
	To   *time.Time
	// Search matches requester name or email, case-insensitively.
	Search string
}

// AdRequestSort orders list results. Unknown fields fall back to requestDate.
type AdRequestSort struct {
	Field string
	Desc  bool
}

// DefaultSort is newest requests first.
var DefaultSort = AdRequestSort{Field: "requestDate", Desc: true}

var sortColumns = map[string]string{
	"requestDate":           "request_date",
	"desiredCompletionDate": "desired_completion_date",
	"status":                "status",
	"requesterName":         "requester_name",
	"requesterDepartment":   "requester_department",
	"adType":                "ad_type",
	"lastUpdated":           "last_updated",
}

// SortableField reports whether field can be used in AdRequestSort.
func SortableField(field string) bool {
	_, ok := sortColumns[field]
	return ok
}

func (s AdRequestSort) orderBy() string {
	column, ok := sortColumns[s.Field]
	if !ok {
		column = sortColumns[DefaultSort.Field]
	}
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf("%s %s, id %s", column, dir, dir)
}

// ExportCursor marks the last row of an export batch.
type ExportCursor struct {
	RequestDate time.Time
	ID          uuid.UUID
}

// where renders the filter as a SQL WHERE clause. Placeholders continue
// after the supplied args.
func (f AdRequestFilter) where(args []any) (string, []any) {
	var clauses []string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		clauses = append(clauses, "status = "+next(string(f.Status)))
	}
	if dept := strings.TrimSpace(f.Department); dept != "" {
		clauses = append(clauses, "requester_department = "+next(dept))
	}
	if f.From != nil {
		clauses = append(clauses, "request_date >= "+next(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "request_date <= "+next(*f.To))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		p := next("%" + escapeLike(search) + "%")
		clauses = append(clauses, fmt.Sprintf("(requester_name ILIKE %s OR requester_email ILIKE %s)", p, p))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
