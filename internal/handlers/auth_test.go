package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/adamara/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/register", "",
		strings.NewReader(`{"name":"Nia","email":"Nia@Example.com","password":"long-enough"}`), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var registered AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&registered))
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, "nia@example.com", registered.User.Email)
	assert.Equal(t, types.RoleReviewer, registered.User.Role)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = api.do(t, http.MethodPost, "/auth/register", "",
		strings.NewReader(`{"name":"Nia","email":"nia@example.com","password":"long-enough"}`), "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"User already exists"}`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/auth/login", "",
		strings.NewReader(`{"email":"NIA@example.com","password":"long-enough"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	var login AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))
	assert.Equal(t, registered.User.ID, login.User.ID)

	rec = api.do(t, http.MethodGet, "/auth/current", login.Token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var profile Profile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&profile))
	assert.Equal(t, Profile{ID: login.User.ID, Name: "Nia", Email: "nia@example.com", Role: types.RoleReviewer}, profile)
}

func TestRegister_Validation(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/register", "",
		strings.NewReader(`{"email":"x","password":"short","role":"owner"}`), "application/json")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body ValidationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Errors, 4)

	rec = api.do(t, http.MethodPost, "/auth/register", "", strings.NewReader(`{`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_Failures(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/login", "",
		strings.NewReader(`{"email":"ada@example.com","password":"wrong-password"}`), "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid credentials"}`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/auth/login", "", strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/auth/current", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"No token, authorization denied"}`, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/auth/current", "not.a.token", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Authentication failed. Please log in again."}`, rec.Body.String())

	token := api.token(t, api.reviewer)
	deactivated := api.reviewer
	deactivated.Active = false
	api.users.users[deactivated.ID] = deactivated

	rec = api.do(t, http.MethodGet, "/auth/current", token, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	delete(api.users.users, deactivated.ID)
	rec = api.do(t, http.MethodGet, "/auth/current", token, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer   abc  ", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", tt.header)
		got, err := bearerToken(req)
		if tt.wantErr {
			assert.Error(t, err, tt.header)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/healthz", "", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
