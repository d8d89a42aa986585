package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlpilot/internal/domain"
)

const testSecret = "test-secret-for-hs256"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

// authHandler records the domain user seen by the wrapped handler.
func authHandler(seen *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := domain.UserFromContext(r.Context()); ok {
			*seen = u.Name
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_JWT(t *testing.T) {
	mw, err := Auth(AuthConfig{JWTSecret: testSecret})
	require.NoError(t, err)

	t.Run("valid_token_sets_user", func(t *testing.T) {
		var seen string
		token := signToken(t, testSecret, jwt.MapClaims{
			"sub":   "user-123",
			"email": "alice@example.com",
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		mw(authHandler(&seen)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice@example.com", seen)
	})

	t.Run("falls_back_to_sub_without_email", func(t *testing.T) {
		var seen string
		token := signToken(t, testSecret, jwt.MapClaims{
			"sub": "user-123",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		mw(authHandler(&seen)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user-123", seen)
	})

	t.Run("wrong_secret_rejected", func(t *testing.T) {
		var seen string
		token := signToken(t, "other-secret", jwt.MapClaims{"sub": "user-123"})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		mw(authHandler(&seen)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, seen)
	})

	t.Run("expired_token_rejected", func(t *testing.T) {
		var seen string
		token := signToken(t, testSecret, jwt.MapClaims{
			"sub": "user-123",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		mw(authHandler(&seen)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing_credentials_rejected", func(t *testing.T) {
		var seen string
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		mw(authHandler(&seen)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"code":401,"message":"unauthorized: provide a valid JWT Bearer token or API key"}`, rec.Body.String())
	})
}

func TestAuth_CustomNameClaim(t *testing.T) {
	mw, err := Auth(AuthConfig{JWTSecret: testSecret, NameClaim: "preferred_username"})
	require.NoError(t, err)

	var seen string
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":                "user-123",
		"preferred_username": "alice",
		"exp":                time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw(authHandler(&seen)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", seen)
}

func TestAuth_APIKey(t *testing.T) {
	mw, err := Auth(AuthConfig{APIKey: "sekrit"})
	require.NoError(t, err)

	t.Run("valid_key_accepted", func(t *testing.T) {
		var seen string
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "sekrit")
		rec := httptest.NewRecorder()
		mw(authHandler(&seen)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "api-key", seen)
	})

	t.Run("caller_may_identify_itself", func(t *testing.T) {
		var seen string
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "sekrit")
		req.Header.Set("X-User-ID", "batch-runner")
		rec := httptest.NewRecorder()
		mw(authHandler(&seen)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "batch-runner", seen)
	})

	t.Run("wrong_key_rejected", func(t *testing.T) {
		var seen string
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "wrong")
		rec := httptest.NewRecorder()
		mw(authHandler(&seen)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("custom_header", func(t *testing.T) {
		custom, err := Auth(AuthConfig{APIKey: "sekrit", APIKeyHeader: "X-Service-Token"})
		require.NoError(t, err)

		var seen string
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Service-Token", "sekrit")
		rec := httptest.NewRecorder()
		custom(authHandler(&seen)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAuth_Disabled(t *testing.T) {
	mw, err := Auth(AuthConfig{})
	require.NoError(t, err)

	var seen string
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mw(authHandler(&seen)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, seen, "anonymous callers carry no user")
}

func TestHS256Validator(t *testing.T) {
	t.Run("empty_secret_rejected", func(t *testing.T) {
		_, err := NewHS256Validator("", "")
		require.Error(t, err)
	})

	t.Run("no_usable_claim", func(t *testing.T) {
		v, err := NewHS256Validator(testSecret, "")
		require.NoError(t, err)
		token := signToken(t, testSecret, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		_, err = v.Validate(token)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "email")
	})
}
