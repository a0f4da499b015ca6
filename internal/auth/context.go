package auth

import (
	"context"
	"net/http"

	"github.com/mbenek/sitegate/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	claimsContextKey  contextKey = "token_claims"
	attemptContextKey contextKey = "login_attempt"
)

// WithSession injects a verified token's claims and backing ledger entry
// into the request context.
func WithSession(ctx context.Context, attempt *models.LoginAttempt, claims *models.TokenClaims) context.Context {
	ctx = context.WithValue(ctx, attemptContextKey, attempt)
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext extracts verified token claims from the request context.
func ClaimsFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(claimsContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// AttemptFromContext extracts the backing ledger entry from the request
// context.
func AttemptFromContext(r *http.Request) *models.LoginAttempt {
	attempt, ok := r.Context().Value(attemptContextKey).(*models.LoginAttempt)
	if !ok {
		return nil
	}
	return attempt
}
