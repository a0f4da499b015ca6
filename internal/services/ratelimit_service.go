package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbenek/sitegate/internal/models"
)

// RateLimitLedger is the rate limiter's read-only view of the attempt
// ledger.
type RateLimitLedger interface {
	RecentByScope(ctx context.Context, ip string, siteCode models.SiteCode, since time.Time, limit int) ([]*models.LoginAttempt, error)
}

// RateLimitConfig holds the lockout policy constants.
type RateLimitConfig struct {
	// MaxConsecutiveFailures is the threshold before a lockout applies.
	MaxConsecutiveFailures int
	// LookbackWindow and LookbackAttempts bound the ledger scan.
	LookbackWindow   time.Duration
	LookbackAttempts int
	// BaseLockout doubles for every failure past the threshold, capped at
	// MaxLockout, measured from the last failed attempt.
	BaseLockout time.Duration
	MaxLockout  time.Duration
}

// DefaultRateLimitConfig returns the policy constants used in production.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxConsecutiveFailures: 5,
		LookbackWindow:         15 * time.Minute,
		LookbackAttempts:       20,
		BaseLockout:            5 * time.Minute,
		MaxLockout:             1 * time.Hour,
	}
}

// LoginAbility is the rate limiter's verdict for one (ip, siteCode) pair.
type LoginAbility struct {
	Allowed           bool
	RetryAfter        time.Duration
	AttemptsRemaining int
}

// RateLimitService decides whether a new login attempt is permitted based
// on recent ledger entries. It performs no writes.
type RateLimitService struct {
	ledger RateLimitLedger
	config RateLimitConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(ledger RateLimitLedger, config RateLimitConfig, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		ledger: ledger,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// CheckLoginAbility scans the most recent attempts for (ip, siteCode) and
// counts consecutive failures backward from the newest entry. A success
// anywhere in the scan resets the count. Past the threshold, the lockout
// window doubles per additional failure, measured from the last failure.
// Errors propagate to the caller; this service does not decide fail-open
// versus fail-closed.
func (s *RateLimitService) CheckLoginAbility(ctx context.Context, ip string, siteCode models.SiteCode) (*LoginAbility, error) {
	since := s.now().Add(-s.config.LookbackWindow)

	attempts, err := s.ledger.RecentByScope(ctx, ip, siteCode, since, s.config.LookbackAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to scan recent attempts: %w", err)
	}

	consecutive := 0
	var lastFailure time.Time
	for _, attempt := range attempts {
		if attempt.Success {
			break
		}
		if consecutive == 0 {
			lastFailure = attempt.AttemptTime
		}
		consecutive++
	}

	if consecutive < s.config.MaxConsecutiveFailures {
		return &LoginAbility{
			Allowed:           true,
			AttemptsRemaining: s.config.MaxConsecutiveFailures - consecutive,
		}, nil
	}

	lockout := s.lockoutDuration(consecutive)
	retryAt := lastFailure.Add(lockout)
	now := s.now()

	if now.Before(retryAt) {
		s.logger.Warn("login locked out",
			slog.String("ip", ip),
			slog.String("site_code", string(siteCode)),
			slog.Int("consecutive_failures", consecutive),
			slog.Duration("retry_after", retryAt.Sub(now)))
		return &LoginAbility{
			Allowed:    false,
			RetryAfter: retryAt.Sub(now),
		}, nil
	}

	// Lockout elapsed: the streak is still at or past the threshold, so
	// the next failure re-arms the lockout immediately. That leaves one
	// probe attempt; a success clears the streak and restores the full
	// allowance.
	return &LoginAbility{Allowed: true, AttemptsRemaining: 1}, nil
}

// lockoutDuration computes the escalating backoff: base doubled for every
// consecutive failure past the threshold, capped at MaxLockout.
func (s *RateLimitService) lockoutDuration(consecutive int) time.Duration {
	lockout := s.config.BaseLockout
	for i := s.config.MaxConsecutiveFailures; i < consecutive; i++ {
		lockout *= 2
		if lockout >= s.config.MaxLockout {
			return s.config.MaxLockout
		}
	}
	if lockout > s.config.MaxLockout {
		return s.config.MaxLockout
	}
	return lockout
}

// AttemptMessage renders the user-facing explanation of a verdict. It never
// states which factor (IP versus scope) tripped the limit.
func AttemptMessage(ability *LoginAbility) string {
	if ability == nil {
		return ""
	}
	if !ability.Allowed {
		minutes := int(ability.RetryAfter.Minutes())
		if ability.RetryAfter > time.Duration(minutes)*time.Minute {
			minutes++
		}
		if minutes < 1 {
			minutes = 1
		}
		return fmt.Sprintf("Too many failed attempts. Try again in %d minute(s).", minutes)
	}
	return fmt.Sprintf("%d attempt(s) remaining.", ability.AttemptsRemaining)
}
