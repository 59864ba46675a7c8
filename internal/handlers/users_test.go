package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/adamara/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListUsers(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/users", api.token(t, api.reviewer), nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body UserListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Items, 2)
	assert.NotContains(t, rec.Body.String(), "passwordHash")
}

func TestUpdateUser_AdminOnly(t *testing.T) {
	api := newTestAPI(t)
	path := fmt.Sprintf("/users/%s", api.reviewer.ID)

	rec := api.do(t, http.MethodPut, path, api.token(t, api.reviewer), strings.NewReader(`{"role":"admin"}`), "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Access denied. Admin role required."}`, rec.Body.String())

	rec = api.do(t, http.MethodPut, path, api.token(t, api.admin), strings.NewReader(`{"department":"Design","active":false}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated types.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, "Design", updated.Department)
	assert.False(t, updated.Active)

	rec = api.do(t, http.MethodPut, "/users/nope", api.token(t, api.admin), strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
