package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eric2umeh/frontbill/internal/model"
)

func TestAuthMiddlewareRoundTrip(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	var gotID int64
	var gotRole model.StaffRole
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetStaffIDFromContext(r.Context())
		require.True(t, ok)
		gotID = id

		role, ok := GetRoleFromContext(r.Context())
		require.True(t, ok)
		gotRole = role

		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	auth.SetAuthCookie(rec, 42, model.RoleManager)
	cookie := rec.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	auth.Middleware(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), gotID)
	assert.Equal(t, model.RoleManager, gotRole)
}

func TestAuthMiddlewareRejectsBadCookies(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	})

	validRec := httptest.NewRecorder()
	auth.SetAuthCookie(validRec, 42, model.RoleManager)
	valid := validRec.Result().Cookies()[0].Value

	tests := []struct {
		name  string
		value string
	}{
		{"missing cookie", ""},
		{"garbage", "not-a-token"},
		{"tampered id", strings.Replace(valid, "42.", "43.", 1)},
		{"tampered role", strings.Replace(valid, ".manager.", ".admin.", 1)},
		{"unknown role", func() string {
			rec := httptest.NewRecorder()
			auth.SetAuthCookie(rec, 42, "janitor")
			return rec.Result().Cookies()[0].Value
		}()},
		{"foreign secret", func() string {
			other := NewAuthMiddleware("other-secret")
			rec := httptest.NewRecorder()
			other.SetAuthCookie(rec, 42, model.RoleManager)
			return rec.Result().Cookies()[0].Value
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.value != "" {
				req.AddCookie(&http.Cookie{Name: "auth_token", Value: tt.value})
			}
			rec := httptest.NewRecorder()
			auth.Middleware(next).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
