package services

import (
	"context"
	"testing"

	"github.com/adamara/apiserver/internal/auth"
	"github.com/adamara/apiserver/internal/logging"
	"github.com/adamara/apiserver/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(users ...types.User) (*UserService, *memUsers) {
	repo := newMemUsers(users...)
	svc := NewUserService(repo, logging.Discard())
	svc.now = fixedClock
	return svc, repo
}

func TestRegister(t *testing.T) {
	svc, _ := newUserService()

	user, err := svc.Register(context.Background(), RegisterInput{
		Name:     " Ada ",
		Email:    "Ada@Example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	assert.Equal(t, "Ada", user.Name)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, types.RoleReviewer, user.Role)
	assert.True(t, user.Active)
	assert.True(t, auth.CheckPassword(user.PasswordHash, "correct horse"))
}

func TestRegister_Duplicate(t *testing.T) {
	svc, _ := newUserService()
	input := RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "password1", Role: "admin"}

	_, err := svc.Register(context.Background(), input)
	require.NoError(t, err)

	input.Email = "ADA@example.com"
	_, err = svc.Register(context.Background(), input)
	assert.ErrorIs(t, err, ErrConflict)
	assert.EqualError(t, err, "User already exists")
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newUserService()

	_, err := svc.Register(context.Background(), RegisterInput{Email: "nope", Password: "short", Role: "owner"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []FieldError{
		{Field: "name", Message: "Name is required"},
		{Field: "email", Message: "Please include a valid email"},
		{Field: "password", Message: "Please enter a password with 8 or more characters"},
		{Field: "role", Message: "Role must be either admin or reviewer"},
	}, verr.Violations)
}

func TestAuthenticate(t *testing.T) {
	hash, err := auth.HashPassword("secret-pass")
	require.NoError(t, err)
	active := types.User{ID: uuid.New(), Email: "ada@example.com", PasswordHash: hash, Role: types.RoleAdmin, Active: true}
	inactive := types.User{ID: uuid.New(), Email: "old@example.com", PasswordHash: hash, Role: types.RoleReviewer}
	svc, repo := newUserService(active, inactive)
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, " ADA@example.com", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, active.ID, user.ID)
	require.NotNil(t, user.LastLogin)
	assert.Equal(t, fixedNow, *user.LastLogin)
	assert.Equal(t, []uuid.UUID{active.ID}, repo.touched)

	_, err = svc.Authenticate(ctx, "ada@example.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Authenticate(ctx, "old@example.com", "secret-pass")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "secret-pass")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolve(t *testing.T) {
	active := types.User{ID: uuid.New(), Active: true}
	inactive := types.User{ID: uuid.New()}
	svc, _ := newUserService(active, inactive)
	ctx := context.Background()

	user, err := svc.Resolve(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, active.ID, user.ID)

	_, err = svc.Resolve(ctx, inactive.ID)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Resolve(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestUpdateProfile(t *testing.T) {
	target := types.User{ID: uuid.New(), Name: "Rex", Role: types.RoleReviewer, Active: true}
	svc, _ := newUserService(target)
	ctx := context.Background()
	inactive := false

	updated, err := svc.UpdateProfile(ctx, target.ID.String(), UserPatch{
		Role:       strPtr("ADMIN"),
		Department: strPtr(" Design "),
		Active:     &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, updated.Role)
	assert.Equal(t, "Design", updated.Department)
	assert.False(t, updated.Active)
	assert.Equal(t, "Rex", updated.Name)

	_, err = svc.UpdateProfile(ctx, target.ID.String(), UserPatch{Role: strPtr("owner"), Name: strPtr(" ")})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Violations, 2)

	_, err = svc.UpdateProfile(ctx, "nope", UserPatch{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.UpdateProfile(ctx, uuid.NewString(), UserPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUsers(t *testing.T) {
	svc, _ := newUserService(
		types.User{ID: uuid.New(), Name: "B", Active: true},
		types.User{ID: uuid.New(), Name: "A"},
	)

	users, err := svc.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "B", users[0].Name)

	users, err = svc.List(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
