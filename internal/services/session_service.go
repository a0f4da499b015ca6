package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbenek/sitegate/internal/auth"
	"github.com/mbenek/sitegate/internal/models"
	pkglogger "github.com/mbenek/sitegate/pkg/logger"
)

// Token lifetimes as multiples of the base day-unit.
const (
	adminSessionFactor     = 7
	siteSessionFactor      = 1
	sessionRefreshFactor   = 30
	clientAppAccessFactor  = 3
	clientAppRefreshFactor = 30
)

// AttemptHandle is the ledger's one-shot token-attachment closure over a
// freshly created entry.
type AttemptHandle interface {
	AttachSessionTokens(ctx context.Context, tokens *models.SessionTokens) error
	AttachClientAppTokens(ctx context.Context, tokens *models.ClientAppTokens) error
}

// LedgerRepository defines the attempt ledger operations the issuer needs.
type LedgerRepository interface {
	Save(ctx context.Context, attempt *models.LoginAttempt) (AttemptHandle, error)
	GetByID(ctx context.Context, id string) (*models.LoginAttempt, error)
	Invoke(ctx context.Context, id string) error
	RecentByScope(ctx context.Context, ip string, siteCode models.SiteCode, since time.Time, limit int) ([]*models.LoginAttempt, error)
	List(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error)
}

// AddressResolver resolves a client IP for audit enrichment, best-effort.
type AddressResolver interface {
	Resolve(ctx context.Context, ip string) *models.Address
}

// SessionConfig holds the issuer's lifetime policy.
type SessionConfig struct {
	// BaseUnit is the day-unit all token lifetimes are multiples of.
	BaseUnit time.Duration
}

// LoginInput is one credential submission.
type LoginInput struct {
	SiteCode  models.SiteCode
	Password  string
	IP        string
	UserAgent string
}

// LoginResult carries the minted tokens and the user-facing message for
// both success and failure outcomes.
type LoginResult struct {
	Attempt   *models.LoginAttempt
	Session   *models.SessionTokens
	ClientApp *models.ClientAppTokens
	Message   string
}

// SessionService orchestrates credential verification, rate-limit
// consultation, ledger recording, and token minting. Every terminal
// outcome of a login writes exactly one ledger entry.
type SessionService struct {
	ledger  LedgerRepository
	creds   *CredentialService
	limiter *RateLimitService
	codec   *auth.Codec
	geo     AddressResolver
	timing  *auth.TimingDelay
	config  SessionConfig
	logger  *slog.Logger
	audit   *pkglogger.AuditLogger
}

// NewSessionService creates a new SessionService
func NewSessionService(
	ledger LedgerRepository,
	creds *CredentialService,
	limiter *RateLimitService,
	codec *auth.Codec,
	geo AddressResolver,
	timing *auth.TimingDelay,
	config SessionConfig,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *SessionService {
	return &SessionService{
		ledger:  ledger,
		creds:   creds,
		limiter: limiter,
		codec:   codec,
		geo:     geo,
		timing:  timing,
		config:  config,
		logger:  logger,
		audit:   audit,
	}
}

// Login runs one authentication attempt through rate checking, credential
// checking, and issuance. Validation failures return before any ledger
// write; every later outcome records exactly one entry.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if !models.ValidSiteCode(in.SiteCode) {
		return nil, fmt.Errorf("site code %q: %w", in.SiteCode, models.ErrValidation)
	}
	if in.Password == "" {
		return nil, fmt.Errorf("password is required: %w", models.ErrValidation)
	}

	ip := in.IP
	if ip == "" {
		ip = "unknown"
	}

	// The rate limiter's read must complete before this attempt's ledger
	// write so the new entry is not counted against itself.
	ability, err := s.limiter.CheckLoginAbility(ctx, ip, in.SiteCode)
	if err != nil {
		s.recordFailure(ctx, in, ip, nil, "Internal error during rate check")
		s.logger.Error("rate check failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !ability.Allowed {
		address := s.geo.Resolve(ctx, in.IP)
		s.recordFailure(ctx, in, ip, address, "IP Locked Out")
		s.timing.Wait(false)
		return &LoginResult{Message: AttemptMessage(ability)}, models.ErrLockedOut
	}

	address := s.geo.Resolve(ctx, in.IP)

	adminData, err := s.creds.GetAdminPassData(ctx)
	if err != nil {
		s.recordFailure(ctx, in, ip, address, "Internal error loading credentials")
		s.logger.Error("credential load failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if adminData.IPBlocked(ip) {
		s.recordFailure(ctx, in, ip, address, "IP blocked")
		s.timing.Wait(false)
		return &LoginResult{Message: "Your IP address is blocked."}, models.ErrBlockedIP
	}

	var matched *models.Password
	if in.SiteCode.IsAdministrator() {
		ok, err := s.creds.VerifyAdminPassword(ctx, in.Password)
		if err != nil {
			s.recordFailure(ctx, in, ip, address, "Internal error verifying password")
			s.logger.Error("admin password verification failed", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if !ok {
			return s.rejectCredential(ctx, in, ip, address, "Invalid admin password")
		}
	} else {
		matched, err = s.creds.FindAndConsume(ctx, in.SiteCode, in.Password)
		if err != nil {
			if errors.Is(err, models.ErrInvalidCredential) {
				return s.rejectCredential(ctx, in, ip, address, "Invalid or exhausted site password")
			}
			s.recordFailure(ctx, in, ip, address, "Internal error verifying password")
			s.logger.Error("site password verification failed", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	return s.issue(ctx, in, ip, address, matched, "")
}

// rejectCredential records the failure and re-consults the limiter so the
// message carries an up-to-date remaining-attempts hint.
func (s *SessionService) rejectCredential(ctx context.Context, in LoginInput, ip string, address *models.Address, reason string) (*LoginResult, error) {
	s.recordFailure(ctx, in, ip, address, reason)

	message := "Invalid credentials."
	if ability, err := s.limiter.CheckLoginAbility(ctx, ip, in.SiteCode); err == nil {
		message = fmt.Sprintf("Invalid credentials. %s", AttemptMessage(ability))
	}

	s.timing.Wait(false)
	return &LoginResult{Message: message}, models.ErrInvalidCredential
}

// issue records the success entry, mints the tokens appropriate to the
// scope, and attaches them to the entry via its one-shot handle.
func (s *SessionService) issue(ctx context.Context, in LoginInput, ip string, address *models.Address, matched *models.Password, note string) (*LoginResult, error) {
	attempt := &models.LoginAttempt{
		IP:              ip,
		UserAgent:       in.UserAgent,
		Address:         address,
		SiteCode:        in.SiteCode,
		IsAdministrator: in.SiteCode.IsAdministrator(),
		Success:         true,
	}
	if note != "" {
		attempt.FailedReason = &note
	}
	if matched != nil {
		attempt.PasswordID = &matched.ID
	}

	handle, err := s.ledger.Save(ctx, attempt)
	if err != nil {
		s.logger.Error("failed to record successful attempt", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	result := &LoginResult{Attempt: attempt}
	now := time.Now()

	switch in.SiteCode {
	case models.SiteClientApp:
		tokens, err := s.mintClientAppTokens(attempt.ID, now)
		if err != nil {
			s.logger.Error("failed to mint client-app tokens", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if err := handle.AttachClientAppTokens(ctx, tokens); err != nil {
			s.logger.Error("failed to attach client-app tokens", slog.String("attempt_id", attempt.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		attempt.ClientAppTokens = tokens
		result.ClientApp = tokens

	default:
		tokens, err := s.mintSessionTokens(attempt.ID, in.SiteCode, matched, now)
		if err != nil {
			s.logger.Error("failed to mint session tokens", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if err := handle.AttachSessionTokens(ctx, tokens); err != nil {
			s.logger.Error("failed to attach session tokens", slog.String("attempt_id", attempt.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		attempt.SessionTokens = tokens
		result.Session = tokens
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		AttemptID: attempt.ID,
		SiteCode:  string(in.SiteCode),
		IPAddress: ip,
		UserAgent: in.UserAgent,
		Success:   true,
	})
	s.timing.Wait(true)

	return result, nil
}

// mintSessionTokens builds the cookie-based tokens for a browser session.
// Administrator sessions get a long-lived access/refresh pair; site-scoped
// sessions get a single access token capped to the originating password's
// expiry.
func (s *SessionService) mintSessionTokens(attemptID string, siteCode models.SiteCode, matched *models.Password, now time.Time) (*models.SessionTokens, error) {
	class := models.SigningClass(siteCode)
	isAdmin := siteCode.IsAdministrator()

	ttl := time.Duration(siteSessionFactor) * s.config.BaseUnit
	if isAdmin {
		ttl = time.Duration(adminSessionFactor) * s.config.BaseUnit
	} else if matched != nil {
		if remaining := matched.ExpiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}

	access, err := s.codec.Sign(&models.TokenClaims{
		LoginAttemptID:  attemptID,
		SiteCode:        siteCode,
		TokenType:       models.TokenTypeAccess,
		IsAdministrator: isAdmin,
	}, class, ttl)
	if err != nil {
		return nil, err
	}

	tokens := &models.SessionTokens{
		AccessToken: access,
		ExpiresAt:   now.Add(ttl),
	}

	if isAdmin {
		refresh, err := s.codec.Sign(&models.TokenClaims{
			LoginAttemptID:  attemptID,
			SiteCode:        siteCode,
			TokenType:       models.TokenTypeRefresh,
			IsAdministrator: true,
		}, class, time.Duration(sessionRefreshFactor)*s.config.BaseUnit)
		if err != nil {
			return nil, err
		}
		tokens.RefreshToken = refresh
	}

	return tokens, nil
}

// mintClientAppTokens builds the bearer access/refresh pair for the mobile
// client, always administrator-scoped.
func (s *SessionService) mintClientAppTokens(attemptID string, now time.Time) (*models.ClientAppTokens, error) {
	accessTTL := time.Duration(clientAppAccessFactor) * s.config.BaseUnit
	refreshTTL := time.Duration(clientAppRefreshFactor) * s.config.BaseUnit

	access, err := s.codec.Sign(&models.TokenClaims{
		LoginAttemptID:  attemptID,
		SiteCode:        models.SiteClientApp,
		TokenType:       models.TokenTypeAccess,
		IsAdministrator: true,
	}, models.SecretClientApp, accessTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := s.codec.Sign(&models.TokenClaims{
		LoginAttemptID:  attemptID,
		SiteCode:        models.SiteClientApp,
		TokenType:       models.TokenTypeRefresh,
		IsAdministrator: true,
	}, models.SecretClientApp, refreshTTL)
	if err != nil {
		return nil, err
	}

	return &models.ClientAppTokens{
		AccessToken:      access,
		AccessExpiresAt:  now.Add(accessTTL),
		RefreshToken:     refresh,
		RefreshExpiresAt: now.Add(refreshTTL),
	}, nil
}

// RefreshClientApp validates a client-app refresh token and issues a fresh
// access/refresh pair bound to a new ledger entry. The old refresh token is
// not invalidated; it stays usable until its own expiry.
func (s *SessionService) RefreshClientApp(ctx context.Context, refreshToken, clientIP, userAgent string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required: %w", models.ErrValidation)
	}

	_, claims, err := s.codec.Verify(ctx, refreshToken, models.SiteClientApp)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("refresh token verification failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if claims.TokenType != models.TokenTypeRefresh || !claims.IsAdministrator {
		s.logger.Warn("refresh attempted with non-refresh client-app token")
		return nil, models.ErrUnauthorized
	}

	ip := clientIP
	if ip == "" {
		ip = "unknown"
	}
	address := s.geo.Resolve(ctx, clientIP)

	in := LoginInput{SiteCode: models.SiteClientApp, IP: ip, UserAgent: userAgent}
	return s.issue(ctx, in, ip, address, nil, "Token refresh")
}

// Logout permanently revokes the tokens of a ledger entry and drops it from
// the verification cache.
func (s *SessionService) Logout(ctx context.Context, attemptID string) error {
	if attemptID == "" {
		return fmt.Errorf("attempt id is required: %w", models.ErrValidation)
	}

	if err := s.ledger.Invoke(ctx, attemptID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrUnauthorized
		}
		s.logger.Error("failed to invoke attempt", slog.String("attempt_id", attemptID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.codec.Invalidate(ctx, attemptID)

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "logout",
		AttemptID: attemptID,
		Success:   true,
	})
	return nil
}

// ListAttempts returns a page of ledger entries for the admin panel.
func (s *SessionService) ListAttempts(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.ledger.List(ctx, limit, offset)
}

// recordFailure writes the failed attempt's ledger entry, best-effort: a
// ledger write failure is logged but never masks the original outcome.
func (s *SessionService) recordFailure(ctx context.Context, in LoginInput, ip string, address *models.Address, reason string) {
	attempt := &models.LoginAttempt{
		IP:              ip,
		UserAgent:       in.UserAgent,
		Address:         address,
		SiteCode:        in.SiteCode,
		IsAdministrator: in.SiteCode.IsAdministrator(),
		Success:         false,
		FailedReason:    &reason,
	}

	if _, err := s.ledger.Save(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt",
			slog.String("ip", ip),
			slog.String("site_code", string(in.SiteCode)),
			slog.Any("error", err))
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		AttemptID:     attempt.ID,
		SiteCode:      string(in.SiteCode),
		IPAddress:     ip,
		UserAgent:     in.UserAgent,
		Success:       false,
		FailureReason: reason,
	})
}
