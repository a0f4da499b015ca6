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

// ClientAppServiceInterface defines the session operations the mobile
// client handlers depend on. Enables mocking in tests.
type ClientAppServiceInterface interface {
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	RefreshClientApp(ctx context.Context, refreshToken, clientIP, userAgent string) (*services.LoginResult, error)
	Logout(ctx context.Context, attemptID string) error
}

// ClientAppHandler serves the mobile client's token endpoints. Tokens
// travel as bearer credentials rather than cookies, and every request
// additionally carries the shared API key.
type ClientAppHandler struct {
	sessions ClientAppServiceInterface
	logger   *slog.Logger
}

func NewClientAppHandler(sessions ClientAppServiceInterface, logger *slog.Logger) *ClientAppHandler {
	return &ClientAppHandler{
		sessions: sessions,
		logger:   logger,
	}
}

type clientAppLoginRequest struct {
	Password string `json:"password" validate:"required,max=256"`
}

type clientAppTokenResponse struct {
	Success          bool   `json:"success"`
	AccessToken      string `json:"accessToken"`
	AccessExpiresAt  string `json:"accessExpiresAt"`
	RefreshToken     string `json:"refreshToken"`
	RefreshExpiresAt string `json:"refreshExpiresAt"`
	Message          string `json:"message,omitempty"`
}

// Login handles POST /api/client-app/login. Unlike browser login, an
// unresolvable client IP is rejected outright; the mobile client always
// arrives over a routable address.
func (h *ClientAppHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req clientAppLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip := pkghttp.ExtractClientIP(r)
	if ip == "" {
		pkghttp.WriteBadRequest(w, "Unable to determine client IP")
		return
	}

	result, err := h.sessions.Login(r.Context(), services.LoginInput{
		SiteCode:  models.SiteClientApp,
		Password:  req.Password,
		IP:        ip,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.writeClientAppError(w, result, err)
		return
	}
	if result.ClientApp == nil {
		h.logger.Error("client app login succeeded without tokens")
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, tokenResponse(result.ClientApp))
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// RefreshToken handles POST /api/client-app/refresh-token, exchanging a
// live refresh token for a new access/refresh pair.
func (h *ClientAppHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.sessions.RefreshClientApp(r.Context(), req.RefreshToken, pkghttp.ExtractClientIP(r), r.UserAgent())
	if err != nil {
		h.writeClientAppError(w, result, err)
		return
	}
	if result.ClientApp == nil {
		h.logger.Error("token refresh succeeded without tokens")
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, tokenResponse(result.ClientApp))
}

// Logout handles POST /api/client-app/logout. The middleware has
// already verified the bearer token and loaded its ledger entry.
func (h *ClientAppHandler) Logout(w http.ResponseWriter, r *http.Request) {
	attempt := auth.AttemptFromContext(r)
	if attempt == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.sessions.Logout(r.Context(), attempt.ID); err != nil && !errors.Is(err, models.ErrUnauthorized) {
		h.logger.Error("client app logout failed", "error", err, "attempt_id", attempt.ID)
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

type profileResponse struct {
	Success         bool            `json:"success"`
	AttemptID       string          `json:"attemptId"`
	SiteCode        string          `json:"siteCode"`
	IsAdministrator bool            `json:"isAdministrator"`
	LoggedInAt      string          `json:"loggedInAt"`
	ExpiresAt       string          `json:"expiresAt"`
	Address         *models.Address `json:"address,omitempty"`
}

// Profile handles GET /api/client-app/profile, describing the session
// behind the presented access token.
func (h *ClientAppHandler) Profile(w http.ResponseWriter, r *http.Request) {
	attempt := auth.AttemptFromContext(r)
	claims := auth.ClaimsFromContext(r)
	if attempt == nil || claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, profileResponse{
		Success:         true,
		AttemptID:       attempt.ID,
		SiteCode:        string(claims.SiteCode),
		IsAdministrator: claims.IsAdministrator,
		LoggedInAt:      attempt.AttemptTime.Format(time.RFC3339),
		ExpiresAt:       claims.ExpiresAt.Time.Format(time.RFC3339),
		Address:         attempt.Address,
	})
}

func tokenResponse(tokens *models.ClientAppTokens) clientAppTokenResponse {
	return clientAppTokenResponse{
		Success:          true,
		AccessToken:      tokens.AccessToken,
		AccessExpiresAt:  tokens.AccessExpiresAt.Format(time.RFC3339),
		RefreshToken:     tokens.RefreshToken,
		RefreshExpiresAt: tokens.RefreshExpiresAt.Format(time.RFC3339),
	}
}

func (h *ClientAppHandler) writeClientAppError(w http.ResponseWriter, result *services.LoginResult, err error) {
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
	case errors.Is(err, models.ErrInvalidCredential), errors.Is(err, models.ErrUnauthorized):
		if message == "" {
			message = "Invalid credentials"
		}
		pkghttp.WriteUnauthorized(w, message)
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
