package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"group-ride/internal/group-service/adapters/driver/myhttp/handle"
	"group-ride/internal/group-service/core/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapSetsUserID(t *testing.T) {
	auth := services.NewAuthService("secret")
	token, err := auth.IssueToken("rider-1", time.Hour)
	require.NoError(t, err)

	var seen string
	h := NewAuthMiddleware(auth).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(handle.UserIDHeader)
	}))

	req := httptest.NewRequest(http.MethodGet, "/groups/g1/members", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	// a client supplied identity must not survive
	req.Header.Set(handle.UserIDHeader, "someone-else")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rider-1", seen)
}

func TestWrapRejectsMissingAndBadTokens(t *testing.T) {
	h := NewAuthMiddleware(services.NewAuthService("secret")).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Bearer nope"} {
		req := httptest.NewRequest(http.MethodGet, "/groups/g1/members", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestWrapAdmin(t *testing.T) {
	auth := services.NewAuthService("secret")
	admin, err := auth.IssueAdminToken("ops-1", time.Hour)
	require.NoError(t, err)
	rider, err := auth.IssueToken("rider-1", time.Hour)
	require.NoError(t, err)

	h := NewAuthMiddleware(auth).WrapAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, tc := range []struct {
		header string
		code   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer nope", http.StatusUnauthorized},
		{"Bearer " + rider, http.StatusForbidden},
		{"Bearer " + admin, http.StatusNoContent},
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin/overview", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tc.code, rec.Code, tc.header)
	}
}
