package models

import "github.com/golang-jwt/jwt/v5"

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims is the payload of a signed session or client-app token. Every
// token carries a mandatory back-reference to its ledger entry.
type TokenClaims struct {
	LoginAttemptID  string   `json:"login_attempt_id"`
	SiteCode        SiteCode `json:"site_code,omitempty"`
	TokenType       string   `json:"token_type,omitempty"`
	IsAdministrator bool     `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}
