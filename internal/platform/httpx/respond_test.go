package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeProblem(t *testing.T, res *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &p))
	return p
}

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail string
	}{
		{NewError(ErrUnauthorized, "missing refresh token"), http.StatusUnauthorized, "missing refresh token"},
		{fmt.Errorf("auth: register: %w", NewError(ErrDuplicate, "email already registered")), http.StatusConflict, "email already registered"},
		{fmt.Errorf("wrapped: %w", ErrNotFound), http.StatusNotFound, "resource not found"},
		{ErrForbidden, http.StatusForbidden, "forbidden"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		res := httptest.NewRecorder()
		RespondError(res, tc.err)
		assert.Equal(t, tc.status, res.Code)
		assert.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))
		p := decodeProblem(t, res)
		assert.Equal(t, tc.status, p.Status)
		assert.Equal(t, tc.detail, p.Detail)
	}
}

func TestDecodeJSON(t *testing.T) {
	var target struct {
		Email string `json:"email"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.c"}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &target))
	assert.Equal(t, "a@b.c", target.Email)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.c","admin":true}`))
	assert.ErrorIs(t, DecodeJSON(httptest.NewRecorder(), req, &target), ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.c"}{}`))
	assert.ErrorIs(t, DecodeJSON(httptest.NewRecorder(), req, &target), ErrValidation)
}
