package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"sqlpilot/internal/domain"
)

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// JWTSecret enables HS256 Bearer token auth when non-empty.
	JWTSecret string
	// APIKey enables static API key auth when non-empty.
	APIKey string
	// APIKeyHeader is the header carrying the API key (default X-API-Key).
	APIKeyHeader string
	// NameClaim is the JWT claim used as the caller name (default "email").
	NameClaim string
}

// Auth tries JWT Bearer first, then the static API key. Returns 401 if both
// fail. The resolved principal is stored as the domain user so downstream
// query records attribute to it. With no secret and no key configured the
// middleware passes everything through anonymously.
func Auth(cfg AuthConfig) (func(http.Handler) http.Handler, error) {
	if cfg.JWTSecret == "" && cfg.APIKey == "" {
		return func(next http.Handler) http.Handler { return next }, nil
	}

	var validator *HS256Validator
	if cfg.JWTSecret != "" {
		v, err := NewHS256Validator(cfg.JWTSecret, cfg.NameClaim)
		if err != nil {
			return nil, err
		}
		validator = v
	}
	header := cfg.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Try JWT Bearer token
			if auth := r.Header.Get("Authorization"); validator != nil && strings.HasPrefix(auth, "Bearer ") {
				tokenStr := strings.TrimPrefix(auth, "Bearer ")
				if name, err := validator.Validate(tokenStr); err == nil {
					ctx := domain.WithUser(r.Context(), domain.ContextUser{Name: name})
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			// Try API key
			if key := r.Header.Get(header); key != "" && cfg.APIKey != "" {
				if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) == 1 {
					// API key callers may identify themselves for attribution.
					name := r.Header.Get("X-User-ID")
					if name == "" {
						name = "api-key"
					}
					ctx := domain.WithUser(r.Context(), domain.ContextUser{Name: name})
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			// Both methods failed
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"code":    401,
				"message": "unauthorized: provide a valid JWT Bearer token or API key",
			})
		})
	}, nil
}
