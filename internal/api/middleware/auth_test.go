package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func signToken(t *testing.T, secret []byte, subject string, expired bool) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	if expired {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	assert.NoError(t, err)
	return token
}

func TestAuthRejectsMissingToken(t *testing.T) {
	secret := []byte("s3cret")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	rr := httptest.NewRecorder()
	Auth(secret, nil)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/apps", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthBypassesExemptPaths(t *testing.T) {
	secret := []byte("s3cret")
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	rr := httptest.NewRecorder()
	Auth(secret, map[string]bool{"/health": true})(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthAcceptsValidTokenAndStashesClaims(t *testing.T) {
	secret := []byte("s3cret")
	var claims *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = ClaimsFromContext(r.Context())
	})

	token := signToken(t, secret, "operator-1", false)
	req := httptest.NewRequest(http.MethodGet, "/apps", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	Auth(secret, nil)(next).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	if assert.NotNil(t, claims) {
		assert.Equal(t, "operator-1", claims.Subject)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	secret := []byte("s3cret")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	token := signToken(t, secret, "operator-1", true)
	req := httptest.NewRequest(http.MethodGet, "/apps", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	Auth(secret, nil)(next).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
