package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adamara/apiserver/internal/auth"
	"github.com/adamara/apiserver/internal/store"
	"github.com/adamara/apiserver/types"
	"github.com/google/uuid"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context, includeInactive bool) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// RegisterInput is a staff registration form.
type RegisterInput struct {
	Name       string `json:"name" validate:"required,max=200"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Password   string `json:"password" validate:"min=8,max=72"`
	Role       string `json:"role" validate:"omitempty,oneof=admin reviewer"`
	Department string `json:"department" validate:"max=200"`
}

var registerMessages = fieldMessages{
	"name.required":  "Name is required",
	"email":          "Please include a valid email",
	"password.min":   "Please enter a password with 8 or more characters",
	"password.max":   "Password must be at most 72 characters",
	"role":           "Role must be either admin or reviewer",
	"department.max": "Department must be at most 200 characters",
}

// UserPatch is an admin edit of a staff account.
type UserPatch struct {
	Name       *string `json:"name,omitempty"`
	Role       *string `json:"role,omitempty"`
	Department *string `json:"department,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo   UserRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewUserService(repo UserRepository, logger *slog.Logger) *UserService {
	return &UserService{repo: repo, logger: logger, now: time.Now}
}

// Register creates an active staff account. The role defaults to reviewer.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (types.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Role = strings.ToLower(strings.TrimSpace(input.Role))
	input.Department = strings.TrimSpace(input.Department)

	verr := &ValidationError{}
	if err := validateStruct(input, registerMessages, verr); err != nil {
		return types.User{}, err
	}
	if err := verr.Err(); err != nil {
		return types.User{}, err
	}

	role := types.RoleReviewer
	if input.Role != "" {
		role = types.Role(input.Role)
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         role,
		Department:   input.Department,
		Active:       true,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, &ConflictError{Reason: "User already exists"}
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered", "userId", user.ID, "role", user.Role)
	return user, nil
}

// Authenticate verifies an email and password pair. Unknown emails,
// inactive accounts and wrong passwords are indistinguishable.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthenticated
		}
		return types.User{}, fmt.Errorf("look up user: %w", err)
	}
	if !user.Active || !auth.CheckPassword(user.PasswordHash, password) {
		return types.User{}, ErrUnauthenticated
	}

	now := s.now().UTC()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to record last login", "userId", user.ID, "error", err)
	} else {
		user.LastLogin = &now
	}
	return user, nil
}

// Resolve returns the active user a verified token refers to.
func (s *UserService) Resolve(ctx context.Context, id uuid.UUID) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthenticated
		}
		return types.User{}, fmt.Errorf("resolve user: %w", err)
	}
	if !user.Active {
		return types.User{}, ErrUnauthenticated
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, includeInactive bool) ([]types.User, error) {
	return s.repo.List(ctx, includeInactive)
}

// UpdateProfile applies an admin edit. Malformed ids are reported as
// ErrNotFound.
func (s *UserService) UpdateProfile(ctx context.Context, id string, patch UserPatch) (types.User, error) {
	userID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return types.User{}, ErrNotFound
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}

	verr := &ValidationError{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			verr.Add("name", "Name is required")
		}
		user.Name = name
	}
	if patch.Role != nil {
		role := types.Role(strings.ToLower(strings.TrimSpace(*patch.Role)))
		if !role.Valid() {
			verr.Add("role", "Role must be either admin or reviewer")
		}
		user.Role = role
	}
	if patch.Department != nil {
		user.Department = strings.TrimSpace(*patch.Department)
	}
	if patch.Active != nil {
		user.Active = *patch.Active
	}
	if err := verr.Err(); err != nil {
		return types.User{}, err
	}

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, err
		}
		return types.User{}, fmt.Errorf("update user: %w", err)
	}
	s.logger.InfoContext(ctx, "user updated", "userId", updated.ID, "role", updated.Role, "active", updated.Active)
	return updated, nil
}
