package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProfileLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := serve(env.profiles.Create, requestSpec{
		method: http.MethodPost,
		target: "/api/profile",
		body:   jsonBody(t, map[string]any{"username": "student", "display_name": "Student", "floor": 3}),
		user:   "student",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(env.profiles.Get, requestSpec{target: "/api/profile/student", user: "casey", params: params("username", "student")})
	require.Equal(t, http.StatusOK, rec.Code)
	var profile map[string]any
	decodeResponse(t, rec, &profile)
	require.Equal(t, "student", profile["username"])
	require.Equal(t, "Student", profile["display_name"])

	rec = serve(env.profiles.Update, requestSpec{
		method:      http.MethodPut,
		target:      "/api/profile/student",
		body:        jsonBody(t, map[string]any{"floor": 4}),
		contentType: "application/json",
		user:        "student",
		params:      params("username", "student"),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(env.profiles.Get, requestSpec{target: "/api/profile/student", user: "student", params: params("username", "student")})
	profile = nil
	decodeResponse(t, rec, &profile)
	require.EqualValues(t, 4, profile["floor"])
	require.Equal(t, "Student", profile["display_name"])

	rec = serve(env.profiles.Delete, requestSpec{method: http.MethodDelete, target: "/api/profile/student", user: "student", params: params("username", "student")})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(env.profiles.Delete, requestSpec{method: http.MethodDelete, target: "/api/profile/student", user: "student", params: params("username", "student")})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(env.profiles.Get, requestSpec{target: "/api/profile/student", user: "student", params: params("username", "student")})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfileValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := serve(env.profiles.Create, requestSpec{
		method: http.MethodPost,
		target: "/api/profile",
		body:   jsonBody(t, map[string]any{"display_name": "Nobody"}),
		user:   "student",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeResponse(t, rec, nil)
	require.Equal(t, "username is required", payload.Error.Message)

	rec = serve(env.profiles.Update, requestSpec{
		method: http.MethodPut,
		target: "/api/profile/student",
		body:   strings.NewReader(`{"floor": 1}`),
		user:   "student",
		params: params("username", "student"),
	})
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = serve(env.profiles.Update, requestSpec{
		method:      http.MethodPut,
		target:      "/api/profile/student",
		body:        jsonBody(t, map[string]any{"floor": 1}),
		contentType: "application/json",
		user:        "student",
		params:      params("username", "student"),
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(env.profiles.Create, requestSpec{
		method: http.MethodPost,
		target: "/api/profile",
		body:   jsonBody(t, map[string]any{"username": "student"}),
		user:   "student",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(env.profiles.Update, requestSpec{
		method:      http.MethodPut,
		target:      "/api/profile/student",
		body:        strings.NewReader(`{}`),
		contentType: "application/json",
		user:        "student",
		params:      params("username", "student"),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload = decodeResponse(t, rec, nil)
	require.Equal(t, "No fields to update", payload.Error.Message)
}

func TestProfileWritesRequireOwner(t *testing.T) {
	env := newTestEnv(t)

	rec := serve(env.profiles.Create, requestSpec{
		method: http.MethodPost,
		target: "/api/profile",
		body:   jsonBody(t, map[string]any{"username": "student"}),
		user:   "casey",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(env.profiles.Delete, requestSpec{method: http.MethodDelete, target: "/api/profile/student", user: "casey", params: params("username", "student")})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(env.profiles.Delete, requestSpec{method: http.MethodDelete, target: "/api/profile/student", params: params("username", "student")})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
