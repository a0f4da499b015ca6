package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mbenek/sitegate/internal/models"
	"github.com/mbenek/sitegate/internal/services"
	pkgauth "github.com/mbenek/sitegate/pkg/auth"
	pkghttp "github.com/mbenek/sitegate/pkg/http"
)

// CredentialServiceInterface defines the password-management operations
// the admin handlers depend on. Enables mocking in tests.
type CredentialServiceInterface interface {
	GeneratePassword(ctx context.Context, req services.GeneratePasswordRequest) (*services.GeneratedPassword, error)
	ListPasswords(ctx context.Context) ([]*models.Password, error)
	RemovePassword(ctx context.Context, id string) error
	CleanupExpiredPasswords(ctx context.Context) (int64, error)
	ChangeAdminPassword(ctx context.Context, current, next string) error
}

// AttemptLister exposes the ledger listing used by the admin panel.
type AttemptLister interface {
	ListAttempts(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error)
}

// AdminHandler serves the administrator panel endpoints. Every route it
// handles sits behind the admin gate middleware.
type AdminHandler struct {
	creds    CredentialServiceInterface
	attempts AttemptLister
	geo      services.AddressResolver
	logger   *slog.Logger
}

func NewAdminHandler(creds CredentialServiceInterface, attempts AttemptLister, geo services.AddressResolver, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		creds:    creds,
		attempts: attempts,
		geo:      geo,
		logger:   logger,
	}
}

type generatePasswordRequest struct {
	SiteCode    string `json:"siteCode" validate:"required,max=64"`
	Length      int    `json:"length" validate:"required,gte=4,lte=128"`
	ExpireDays  int    `json:"expireDays" validate:"required,gte=1,lte=365"`
	UsableTimes int    `json:"usableTimes"`
	Lower       bool   `json:"lower"`
	Upper       bool   `json:"upper"`
	Digits      bool   `json:"digits"`
	Symbols     bool   `json:"symbols"`
}

type generatePasswordResponse struct {
	Success   bool   `json:"success"`
	ID        string `json:"id"`
	Password  string `json:"password"`
	CreatedAt string `json:"createdAt"`
	ExpiresAt string `json:"expiresAt"`
}

// GeneratePassword handles POST /admin/passwords. The plaintext appears
// in this response and nowhere else.
func (h *AdminHandler) GeneratePassword(w http.ResponseWriter, r *http.Request) {
	var req generatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	var device *models.Address
	if ip := pkghttp.ExtractClientIP(r); ip != "" {
		device = h.geo.Resolve(r.Context(), ip)
	}

	generated, err := h.creds.GeneratePassword(r.Context(), services.GeneratePasswordRequest{
		SiteCode:    models.SiteCode(req.SiteCode),
		Length:      req.Length,
		ExpireDays:  req.ExpireDays,
		UsableTimes: req.UsableTimes,
		Charset: pkgauth.CharsetFlags{
			Lower:   req.Lower,
			Upper:   req.Upper,
			Digits:  req.Digits,
			Symbols: req.Symbols,
		},
		DeviceAddress: device,
	})
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			pkghttp.WriteBadRequest(w, err.Error())
			return
		}
		h.logger.Error("password generation failed", "error", err)
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, generatePasswordResponse{
		Success:   true,
		ID:        generated.ID,
		Password:  generated.Plaintext,
		CreatedAt: generated.CreatedAt.Format(time.RFC3339),
		ExpiresAt: generated.ExpiresAt.Format(time.RFC3339),
	})
}

type passwordSummary struct {
	ID            string          `json:"id"`
	SiteCode      string          `json:"siteCode"`
	Length        int             `json:"length"`
	CreatedAt     string          `json:"createdAt"`
	ExpiresAt     string          `json:"expiresAt"`
	UsableTimes   int             `json:"usableTimes"`
	UsedTimes     int             `json:"usedTimes"`
	Hint          string          `json:"hint"`
	Usable        bool            `json:"usable"`
	DeviceAddress *models.Address `json:"deviceAddress,omitempty"`
}

// ListPasswords handles GET /admin/passwords. Hashes never leave the
// service; only metadata and the masked hint are returned.
func (h *AdminHandler) ListPasswords(w http.ResponseWriter, r *http.Request) {
	passwords, err := h.creds.ListPasswords(r.Context())
	if err != nil {
		h.logger.Error("password listing failed", "error", err)
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	now := time.Now()
	summaries := make([]passwordSummary, 0, len(passwords))
	for _, p := range passwords {
		usableTimes := p.UsableTimes
		if usableTimes == 0 {
			usableTimes = services.UsableTimesUnlimited
		}
		summaries = append(summaries, passwordSummary{
			ID:            p.ID,
			SiteCode:      string(p.SiteCode),
			Length:        p.Length,
			CreatedAt:     p.CreatedAt.Format(time.RFC3339),
			ExpiresAt:     p.ExpiresAt.Format(time.RFC3339),
			UsableTimes:   usableTimes,
			UsedTimes:     p.UsedTimes,
			Hint:          p.Hint,
			Usable:        p.Usable(now),
			DeviceAddress: p.DeviceAddress,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"passwords": summaries,
	})
}

// DeletePassword handles DELETE /admin/passwords/{id}.
func (h *AdminHandler) DeletePassword(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		pkghttp.WriteBadRequest(w, "Missing password id")
		return
	}

	if err := h.creds.RemovePassword(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Password not found")
			return
		}
		h.logger.Error("password deletion failed", "error", err, "password_id", id)
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

// CleanupPasswords handles POST /admin/passwords/cleanup, removing all
// expired passwords immediately instead of waiting for the sweeper.
func (h *AdminHandler) CleanupPasswords(w http.ResponseWriter, r *http.Request) {
	removed, err := h.creds.CleanupExpiredPasswords(r.Context())
	if err != nil {
		h.logger.Error("password cleanup failed", "error", err)
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"removed": removed,
	})
}

type changeCredentialRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required,max=256"`
	NewPassword     string `json:"newPassword" validate:"required,min=12,max=256"`
}

// ChangeCredential handles PUT /admin/credential, rotating the
// administrator password after verifying the current one.
func (h *AdminHandler) ChangeCredential(w http.ResponseWriter, r *http.Request) {
	var req changeCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.creds.ChangeAdminPassword(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, models.ErrInvalidCredential) {
			pkghttp.WriteUnauthorized(w, "Current password is incorrect")
			return
		}
		h.logger.Error("admin credential change failed", "error", err)
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

type attemptSummary struct {
	ID              string          `json:"id"`
	IP              string          `json:"ip"`
	UserAgent       string          `json:"userAgent"`
	Address         *models.Address `json:"address,omitempty"`
	SiteCode        string          `json:"siteCode"`
	IsAdministrator bool            `json:"isAdministrator"`
	Success         bool            `json:"success"`
	FailedReason    *string         `json:"failedReason,omitempty"`
	AttemptTime     string          `json:"attemptTime"`
	Invoked         bool            `json:"invoked"`
	PasswordID      *string         `json:"passwordId,omitempty"`
	HasSession      bool            `json:"hasSession"`
	HasClientApp    bool            `json:"hasClientApp"`
}

// ListAttempts handles GET /admin/login-attempts. Token values are
// never included in the response; only their presence is reported.
func (h *AdminHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	attempts, err := h.attempts.ListAttempts(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("attempt listing failed", "error", err)
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	summaries := make([]attemptSummary, 0, len(attempts))
	for _, a := range attempts {
		summaries = append(summaries, attemptSummary{
			ID:              a.ID,
			IP:              a.IP,
			UserAgent:       a.UserAgent,
			Address:         a.Address,
			SiteCode:        string(a.SiteCode),
			IsAdministrator: a.IsAdministrator,
			Success:         a.Success,
			FailedReason:    a.FailedReason,
			AttemptTime:     a.AttemptTime.Format(time.RFC3339),
			Invoked:         a.Invoked,
			PasswordID:      a.PasswordID,
			HasSession:      a.SessionTokens != nil,
			HasClientApp:    a.ClientAppTokens != nil,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"attempts": summaries,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
