package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/adamara/apiserver/internal/services"
	"github.com/adamara/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxMultipartMemory = 32 << 20
	formFieldFiles     = "files"
	requestNotFound    = "request not found"
	createdMessage     = "Ad request submitted successfully!"
)

var csvHeader = []string{"ID", "Requester Name", "Email", "Department", "Ad Type", "Status", "Request Date", "Completion Date"}

// AdRequestHandler provides HTTP handlers for ad requests.
type AdRequestHandler struct {
	requests    *services.AdRequestService
	attachments *services.AttachmentService
	logger      *slog.Logger
	now         func() time.Time
}

// NewAdRequestHandler constructs a handler with the provided services.
func NewAdRequestHandler(requests *services.AdRequestService, attachments *services.AttachmentService, logger *slog.Logger) *AdRequestHandler {
	return &AdRequestHandler{
		requests:    requests,
		attachments: attachments,
		logger:      logger,
		now:         time.Now,
	}
}

// AdRequestRouter registers ad request routes on the given router.
// Submission is public; everything else needs authMiddleware.
func AdRequestRouter(r chi.Router, handler *AdRequestHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Post("/", handler.CreateRequest)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", handler.ListRequests)
		r.Get("/export/csv", handler.ExportCSV)
		r.Route("/{requestID}", func(r chi.Router) {
			r.Get("/", handler.GetRequest)
			r.Put("/", handler.UpdateRequest)
		})
	})
}

func (h *AdRequestHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	input, uploads, cleanup, err := h.parseSubmission(w, r)
	defer cleanup()
	if err != nil {
		var (
			tooLarge *http.MaxBytesError
			verr     *services.ValidationError
		)
		if errors.As(err, &verr) {
			writeServiceError(w, r, h.logger, err, requestNotFound, "failed to create request")
			return
		}
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.requests.Create(r.Context(), input, uploads)
	if err != nil {
		writeServiceError(w, r, h.logger, err, requestNotFound, "failed to create request")
		return
	}

	writeJSON(w, http.StatusCreated, CreateResponse{RequestID: created.ID.String(), Message: createdMessage})
}

func (h *AdRequestHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	params, err := h.requests.ParseListQuery(listQuery(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err, requestNotFound, "failed to list requests")
		return
	}

	page, err := h.requests.List(r.Context(), params)
	if err != nil {
		writeServiceError(w, r, h.logger, err, requestNotFound, "failed to list requests")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *AdRequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, noTokenMessage)
		return
	}

	req, err := h.requests.Authorize(r.Context(), user, chi.URLParam(r, "requestID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, requestNotFound, "failed to fetch request")
		return
	}
	h.writeDetail(w, r, req)
}

func (h *AdRequestHandler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, noTokenMessage)
		return
	}

	id := chi.URLParam(r, "requestID")
	if _, err := h.requests.Authorize(r.Context(), user, id); err != nil {
		writeServiceError(w, r, h.logger, err, requestNotFound, "failed to update request")
		return
	}

	var patch services.UpdatePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.requests.Update(r.Context(), user, id, patch)
	if err != nil {
		writeServiceError(w, r, h.logger, err, requestNotFound, "failed to update request")
		return
	}
	h.writeDetail(w, r, updated)
}

func (h *AdRequestHandler) writeDetail(w http.ResponseWriter, r *http.Request, req types.AdRequest) {
	detail, err := h.requests.Detail(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, requestNotFound, "failed to fetch request")
		return
	}
	writeJSON(w, http.StatusOK, RequestResponse{Request: detail})
}

// ExportCSV streams every request matching the list filters as CSV.
// Headers are sent with the first row so a failing first read can still
// be reported as JSON.
func (h *AdRequestHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	params, err := h.requests.ParseListQuery(listQuery(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err, requestNotFound, "failed to export requests")
		return
	}

	cw := csv.NewWriter(w)
	started := false
	start := func() error {
		if started {
			return nil
		}
		started = true
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ad-requests-%d.csv"`, h.now().Unix()))
		w.WriteHeader(http.StatusOK)
		return cw.Write(csvHeader)
	}

	err = h.requests.Export(r.Context(), params.Filter, func(req types.AdRequest) error {
		if err := start(); err != nil {
			return err
		}
		return cw.Write(csvRecord(req))
	})
	if err != nil {
		if !started {
			writeServiceError(w, r, h.logger, err, requestNotFound, "failed to export requests")
			return
		}
		h.logger.ErrorContext(r.Context(), "export aborted", "error", err)
		return
	}
	if err := start(); err != nil {
		h.logger.ErrorContext(r.Context(), "export aborted", "error", err)
		return
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.ErrorContext(r.Context(), "export aborted", "error", err)
	}
}

func csvRecord(req types.AdRequest) []string {
	return []string{
		req.ID.String(),
		req.RequesterName,
		req.RequesterEmail,
		req.RequesterDepartment,
		string(req.AdType),
		string(req.Status),
		req.RequestDate.UTC().Format(time.RFC3339),
		req.DesiredCompletionDate.UTC().Format(time.RFC3339),
	}
}

func listQuery(r *http.Request) services.ListQuery {
	q := r.URL.Query()
	return services.ListQuery{
		Status:     q.Get("status"),
		Search:     q.Get("search"),
		Department: q.Get("department"),
		StartDate:  q.Get("startDate"),
		EndDate:    q.Get("endDate"),
		Page:       q.Get("page"),
		Limit:      q.Get("limit"),
		SortField:  q.Get("sortField"),
		SortOrder:  q.Get("sortOrder"),
	}
}

// parseSubmission reads the intake form from a multipart, urlencoded or
// JSON body. cleanup closes any opened uploads and is always non-nil.
//
// The body may carry one file more than allowed so an extra file is
// reported by attachment validation. A multipart body beyond that is
// reported as a files violation.
func (h *AdRequestHandler) parseSubmission(w http.ResponseWriter, r *http.Request) (services.NewAdRequest, []services.Upload, func(), error) {
	cleanup := func() {}
	limits := h.attachments.Limits()
	r.Body = http.MaxBytesReader(w, r.Body, int64(limits.MaxFiles+1)*limits.MaxFileBytes+maxJSONBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var input services.NewAdRequest
		if err := decodeJSON(w, r, &input); err != nil {
			return input, nil, cleanup, wrapBodyError(err)
		}
		return input, nil, cleanup, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				verr := &services.ValidationError{}
				verr.Addf(formFieldFiles, "Attachments exceed the upload limit of %d files of %d MB each",
					limits.MaxFiles, limits.MaxFileBytes>>20)
				return services.NewAdRequest{}, nil, cleanup, verr.Err()
			}
			return services.NewAdRequest{}, nil, cleanup, wrapBodyError(err)
		}
		cleanup = func() { _ = r.MultipartForm.RemoveAll() }
		uploads, closeFiles, err := openUploads(r.MultipartForm.File[formFieldFiles])
		if err != nil {
			return services.NewAdRequest{}, nil, cleanup, err
		}
		removeAll := cleanup
		cleanup = func() {
			closeFiles()
			removeAll()
		}
		return formInput(r), uploads, cleanup, nil
	default:
		if err := r.ParseForm(); err != nil {
			return services.NewAdRequest{}, nil, cleanup, wrapBodyError(err)
		}
		return formInput(r), nil, cleanup, nil
	}
}

func wrapBodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return errors.New("invalid form data")
}

func formInput(r *http.Request) services.NewAdRequest {
	return services.NewAdRequest{
		RequesterName:         r.FormValue("requesterName"),
		RequesterEmail:        r.FormValue("requesterEmail"),
		RequesterDepartment:   r.FormValue("requesterDepartment"),
		RequesterPhone:        r.FormValue("requesterPhone"),
		AdType:                r.FormValue("adType"),
		AdPurpose:             r.FormValue("adPurpose"),
		TargetAudience:        r.FormValue("targetAudience"),
		DesiredPlacement:      r.FormValue("desiredPlacement"),
		Budget:                r.FormValue("budget"),
		DesiredCompletionDate: r.FormValue("desiredCompletionDate"),
		AdTitle:               r.FormValue("adTitle"),
		AdDescription:         r.FormValue("adDescription"),
		SpecialInstructions:   r.FormValue("specialInstructions"),
	}
}

func openUploads(headers []*multipart.FileHeader) ([]services.Upload, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	uploads := make([]services.Upload, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("failed to read %s", header.Filename)
		}
		opened = append(opened, file)
		uploads = append(uploads, services.Upload{
			Filename:    header.Filename,
			ContentType: strings.TrimSpace(header.Header.Get("Content-Type")),
			Size:        header.Size,
			Content:     file,
		})
	}
	return uploads, closeAll, nil
}

// CreateResponse is returned after a successful submission.
type CreateResponse struct {
	RequestID string `json:"requestId"`
	Message   string `json:"message"`
}

// RequestResponse wraps a single request.
type RequestResponse struct {
	Request types.AdRequestDetail `json:"request"`
}
