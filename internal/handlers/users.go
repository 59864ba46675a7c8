package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/adamara/apiserver/internal/services"
	"github.com/adamara/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// UserHandler exposes staff accounts to the review dashboard.
type UserHandler struct {
	userService *services.UserService
	logger      *slog.Logger
}

func NewUserHandler(userService *services.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{userService: userService, logger: logger}
}

// UserRouter registers user routes. Listing is open to all staff, edits
// are admin only.
func UserRouter(r chi.Router, handler *UserHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)
	r.Get("/", handler.ListUsers)
	r.With(RequireAdmin).Put("/{userID}", handler.UpdateUser)
}

// ListUsers returns active staff. Admins may pass includeInactive=true.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("includeInactive"))

	users, err := h.userService.List(r.Context(), includeInactive && user.IsAdmin())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "user not found", "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, UserListResponse{Items: users})
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var patch services.UserPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.userService.UpdateProfile(r.Context(), chi.URLParam(r, "userID"), patch)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "user not found", "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type UserListResponse struct {
	Items []types.User `json:"items"`
}
