// Package middleware provides HTTP middleware for authentication,
// per-client rate limiting, and request IDs.
package middleware

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// HS256Validator validates JWTs signed with a shared HS256 secret and
// resolves the principal name from a configurable claim.
type HS256Validator struct {
	secret    []byte
	nameClaim string
}

// NewHS256Validator creates a validator for HS256 tokens. nameClaim is the
// claim used as the caller name; "sub" is the fallback when it is absent.
func NewHS256Validator(secret, nameClaim string) (*HS256Validator, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	if nameClaim == "" {
		nameClaim = "email"
	}
	return &HS256Validator{secret: []byte(secret), nameClaim: nameClaim}, nil
}

// Validate verifies a JWT and returns the principal name.
func (v *HS256Validator) Validate(tokenString string) (string, error) {
	tok, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("token verification failed: %w", err)
	}

	raw, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("parse claims: unsupported claim type %T", tok.Claims)
	}

	if name, ok := raw[v.nameClaim].(string); ok && name != "" {
		return name, nil
	}
	if sub, ok := raw["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("token has no %q or sub claim", v.nameClaim)
}
