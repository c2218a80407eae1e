// Package middleware contains the HTTP middleware of the frontbill service.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eric2umeh/frontbill/internal/model"
)

type contextKey string

const (
	staffIDKey contextKey = "staffID"
	roleKey    contextKey = "staffRole"
)

const (
	authCookieName = "auth_token"
	authCookieTTL  = 30 * 24 * time.Hour
)

// AuthMiddleware authenticates staff requests through a signed cookie
// carrying the staff identifier and role.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware creates an AuthMiddleware with the given secret key.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware verifies the auth cookie and adds the staff identifier and
// role to the request context.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		staffID, role, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), staffIDKey, staffID)
		ctx = context.WithValue(ctx, roleKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetAuthCookie sets the auth cookie for the given staff member.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, staffID int64, role model.StaffRole) {
	payload := strconv.FormatInt(staffID, 10) + "." + string(role)
	value := payload + "." + a.sign(payload)

	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AuthMiddleware) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (int64, model.StaffRole, bool) {
	parts := strings.Split(cookieValue, ".")
	if len(parts) != 3 {
		return 0, "", false
	}

	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(a.sign(payload))) {
		return 0, "", false
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", false
	}

	role := model.StaffRole(parts[1])
	if !role.Valid() {
		return 0, "", false
	}

	return id, role, true
}

// GetStaffIDFromContext extracts the staff identifier from the request context.
func GetStaffIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(staffIDKey).(int64)
	return id, ok
}

// GetRoleFromContext extracts the staff role from the request context.
func GetRoleFromContext(ctx context.Context) (model.StaffRole, bool) {
	role, ok := ctx.Value(roleKey).(model.StaffRole)
	return role, ok
}
