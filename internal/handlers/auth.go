package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mbenek/sitegate/internal/auth"
	"github.com/mbenek/sitegate/internal/models"
	"github.com/mbenek/sitegate/internal/services"
	pkghttp "github.com/mbenek/sitegate/pkg/http"
)

// SessionServiceInterface defines the session operations the browser
// handlers depend on. Enables mocking in tests.
type SessionServiceInterface interface {
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	Logout(ctx context.Context, attemptID string) error
}

// TokenVerifier checks a presented token against a site scope.
type TokenVerifier interface {
	Verify(ctx context.Context, tokenString string, site models.SiteCode) (*models.LoginAttempt, *models.TokenClaims, error)
}

// AuthHandler serves the browser-facing login, logout, and session
// endpoints. Tokens travel in per-site httpOnly cookies.
type AuthHandler struct {
	sessions SessionServiceInterface
	codec    TokenVerifier
	cookies  auth.CookieConfig
	logger   *slog.Logger
}

func NewAuthHandler(sessions SessionServiceInterface, codec TokenVerifier, cookies auth.CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		codec:    codec,
		cookies:  cookies,
		logger:   logger,
	}
}

type loginRequest struct {
	SiteCode string `json:"siteCode" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=256"`
}

type loginResponse struct {
	Success         bool   `json:"success"`
	SiteCode        string `json:"siteCode"`
	IsAdministrator bool   `json:"isAdministrator"`
	ExpiresAt       string `json:"expiresAt"`
	Message         string `json:"message,omitempty"`
}

// Login handles POST /auth/login. On success the access token is set as
// an httpOnly cookie named after the site scope.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	siteCode := models.SiteCode(req.SiteCode)
	result, err := h.sessions.Login(r.Context(), services.LoginInput{
		SiteCode:  siteCode,
		Password:  req.Password,
		IP:        pkghttp.ExtractClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.writeLoginError(w, result, err)
		return
	}
	if result.Session == nil {
		h.logger.Error("login succeeded without session tokens", "site_code", req.SiteCode)
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.SetAccessTokenCookie(w, siteCode, result.Session.AccessToken, result.Session.ExpiresAt, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, loginResponse{
		Success:         true,
		SiteCode:        req.SiteCode,
		IsAdministrator: result.Attempt.IsAdministrator,
		ExpiresAt:       result.Session.ExpiresAt.Format(time.RFC3339),
	})
}

// Logout handles POST /auth/logout. The session cookie for the given
// site is verified, its ledger entry is marked invoked, and the cookie
// is cleared. Clearing happens even when the token no longer verifies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	siteCode := models.SiteCode(r.URL.Query().Get("siteCode"))
	if !models.ValidSiteCode(siteCode) {
		pkghttp.WriteBadRequest(w, "Unknown site code")
		return
	}

	token, err := auth.GetAccessTokenCookie(r, siteCode)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "No active session")
		return
	}

	auth.ClearAccessTokenCookie(w, siteCode, h.cookies)

	attempt, _, err := h.codec.Verify(r.Context(), token, siteCode)
	if err != nil {
		pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	if err := h.sessions.Logout(r.Context(), attempt.ID); err != nil && !errors.Is(err, models.ErrUnauthorized) {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

type sessionResponse struct {
	Success         bool   `json:"success"`
	SiteCode        string `json:"siteCode"`
	IsAdministrator bool   `json:"isAdministrator"`
	ExpiresAt       string `json:"expiresAt"`
}

// Session handles GET /auth/session. It reports whether the caller
// holds a live session for the requested site.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	siteCode := models.SiteCode(r.URL.Query().Get("siteCode"))
	if !models.ValidSiteCode(siteCode) {
		pkghttp.WriteBadRequest(w, "Unknown site code")
		return
	}

	token, err := auth.GetAccessTokenCookie(r, siteCode)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "No active session")
		return
	}

	_, claims, err := h.codec.Verify(r.Context(), token, siteCode)
	if err != nil {
		auth.ClearAccessTokenCookie(w, siteCode, h.cookies)
		pkghttp.WriteUnauthorized(w, "Session expired or revoked")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, sessionResponse{
		Success:         true,
		SiteCode:        string(claims.SiteCode),
		IsAdministrator: claims.IsAdministrator,
		ExpiresAt:       claims.ExpiresAt.Time.Format(time.RFC3339),
	})
}

// writeLoginError maps login failures onto the HTTP error taxonomy. The
// service-supplied message is surfaced for lockout and bad-credential
// outcomes so the caller sees remaining-attempt counts.
func (h *AuthHandler) writeLoginError(w http.ResponseWriter, result *services.LoginResult, err error) {
	message := ""
	if result != nil {
		message = result.Message
	}
	switch {
	case errors.Is(err, models.ErrValidation):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrLockedOut):
		if message == "" {
			message = "Too many failed attempts"
		}
		pkghttp.WriteForbidden(w, message)
	case errors.Is(err, models.ErrBlockedIP):
		if message == "" {
			message = "Your IP address is blocked."
		}
		pkghttp.WriteForbidden(w, message)
	case errors.Is(err, models.ErrInvalidCredential):
		if message == "" {
			message = "Invalid credentials"
		}
		pkghttp.WriteUnauthorized(w, message)
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
