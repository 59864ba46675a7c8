package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/adamara/apiserver/internal/auth"
	"github.com/adamara/apiserver/internal/services"
	"github.com/adamara/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	authFailedMessage   = "Authentication failed. Please log in again."
	noTokenMessage      = "No token, authorization denied"
	adminOnlyMessage    = "Access denied. Admin role required."
	badCredentialsError = "Invalid credentials"
)

// AuthHandler provides JWT authentication endpoints.
type AuthHandler struct {
	userService *services.UserService
	tokens      *auth.TokenIssuer
	logger      *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, tokens *auth.TokenIssuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		tokens:      tokens,
		logger:      logger,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(handler.RequireAuth).Get("/current", handler.Current)
}

// RequireAuth verifies the bearer token and loads the user it names.
// Tokens of users that were deleted or deactivated stop working here.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return RequireAuth(h.tokens, h.userService, h.logger)(next)
}

// UserResolver loads the active user a verified token refers to.
type UserResolver interface {
	Resolve(ctx context.Context, id uuid.UUID) (types.User, error)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(tokens *auth.TokenIssuer, users UserResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, noTokenMessage)
				return
			}

			userID, _, err := tokens.Verify(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, authFailedMessage)
				return
			}

			user, err := users.Resolve(r.Context(), userID)
			if err != nil {
				if errors.Is(err, services.ErrUnauthenticated) {
					writeError(w, http.StatusUnauthorized, authFailedMessage)
					return
				}
				logger.ErrorContext(r.Context(), "failed to resolve token user", "userId", userID, "error", err)
				writeError(w, http.StatusInternalServerError, "failed to load user")
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// RequireAdmin rejects authenticated users that are not admins. It must
// run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, noTokenMessage)
			return
		}
		if !user.IsAdmin() {
			writeError(w, http.StatusForbidden, adminOnlyMessage)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Register creates a new staff account and returns a JWT.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.userService.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "user not found", "failed to create user")
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to issue token", "userId", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: user})
}

// Login verifies credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, ValidationResponse{Errors: loginViolations(req)})
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrUnauthenticated) {
			writeError(w, http.StatusUnauthorized, badCredentialsError)
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to authenticate", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to issue token", "userId", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// Current returns the profile of the authenticated user.
func (h *AuthHandler) Current(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, noTokenMessage)
		return
	}
	writeJSON(w, http.StatusOK, newProfile(user))
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// Profile is the projection of the current user returned by /auth/current.
type Profile struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Role       types.Role `json:"role"`
	Department string     `json:"department"`
}

func newProfile(user types.User) Profile {
	return Profile{
		ID:         user.ID,
		Name:       user.Name,
		Email:      user.Email,
		Role:       user.Role,
		Department: user.Department,
	}
}

func loginViolations(req LoginRequest) []services.FieldError {
	var violations []services.FieldError
	if req.Email == "" {
		violations = append(violations, services.FieldError{Field: "email", Message: "Please include a valid email"})
	}
	if req.Password == "" {
		violations = append(violations, services.FieldError{Field: "password", Message: "Password is required"})
	}
	return violations
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
