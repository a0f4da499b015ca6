package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbenek/sitegate/internal/models"
	pkgauth "github.com/mbenek/sitegate/pkg/auth"
	pkglogger "github.com/mbenek/sitegate/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// UsableTimesUnlimited marks a generated password with no usage cap.
const UsableTimesUnlimited = -1

// PasswordStore defines the persistence operations for ephemeral passwords.
type PasswordStore interface {
	Create(ctx context.Context, password *models.Password) error
	GetByID(ctx context.Context, id string) (*models.Password, error)
	ActiveBySite(ctx context.Context, siteCode models.SiteCode) ([]*models.Password, error)
	List(ctx context.Context) ([]*models.Password, error)
	Consume(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// AdminCredentialStore defines persistence for the singleton admin
// credential.
type AdminCredentialStore interface {
	Get(ctx context.Context) (*models.AdminCredential, error)
	UpdatePassword(ctx context.Context, hash string) error
}

// CredentialService manages the admin credential and the ephemeral
// shareable passwords.
type CredentialService struct {
	passwords PasswordStore
	admin     AdminCredentialStore
	logger    *slog.Logger
	audit     *pkglogger.AuditLogger
}

// NewCredentialService creates a new CredentialService
func NewCredentialService(passwords PasswordStore, admin AdminCredentialStore, logger *slog.Logger, audit *pkglogger.AuditLogger) *CredentialService {
	return &CredentialService{
		passwords: passwords,
		admin:     admin,
		logger:    logger,
		audit:     audit,
	}
}

// GetAdminPassData fetches the singleton admin credential plus the IP
// denylist. Read-only; the denylist is maintained out of band.
func (s *CredentialService) GetAdminPassData(ctx context.Context) (*models.AdminCredential, error) {
	cred, err := s.admin.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin credential: %w", err)
	}
	return cred, nil
}

// VerifyAdminPassword checks a candidate against the stored admin hash.
func (s *CredentialService) VerifyAdminPassword(ctx context.Context, candidate string) (bool, error) {
	cred, err := s.admin.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load admin credential: %w", err)
	}
	return pkgauth.ComparePassword(cred.Hash, candidate) == nil, nil
}

// ChangeAdminPassword replaces the admin password after verifying the
// current one. Callers gate this behind an existing administrator session.
func (s *CredentialService) ChangeAdminPassword(ctx context.Context, current, next string) error {
	if next == "" {
		return fmt.Errorf("new password: %w", models.ErrValidation)
	}

	ok, err := s.VerifyAdminPassword(ctx, current)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrInvalidCredential
	}

	hash, err := pkgauth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	if err := s.admin.UpdatePassword(ctx, hash); err != nil {
		return fmt.Errorf("failed to update admin credential: %w", err)
	}

	s.logger.Info("admin password changed")
	s.audit.LogCredentialAction("admin_password_changed", "", "", "")
	return nil
}

// GeneratePasswordRequest carries the parameters for a new ephemeral
// password. UsableTimes is a positive cap or UsableTimesUnlimited.
type GeneratePasswordRequest struct {
	SiteCode      models.SiteCode
	Length        int
	ExpireDays    int
	UsableTimes   int
	Charset       pkgauth.CharsetFlags
	DeviceAddress *models.Address
}

// GeneratedPassword is returned once to the caller; only the hash and a
// masked hint are retained.
type GeneratedPassword struct {
	ID        string
	Plaintext string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// GeneratePassword creates and persists a new ephemeral Password. The
// plaintext comes from a cryptographically secure source and is never
// stored or logged.
func (s *CredentialService) GeneratePassword(ctx context.Context, req GeneratePasswordRequest) (*GeneratedPassword, error) {
	if !models.ShareableSiteCode(req.SiteCode) {
		return nil, fmt.Errorf("site code %q: %w", req.SiteCode, models.ErrValidation)
	}
	if req.Length <= 0 || req.ExpireDays <= 0 {
		return nil, fmt.Errorf("length and expire days must be positive: %w", models.ErrValidation)
	}
	if req.UsableTimes == 0 || req.UsableTimes < UsableTimesUnlimited {
		return nil, fmt.Errorf("usable times must be positive or unlimited: %w", models.ErrValidation)
	}

	plaintext, err := pkgauth.GeneratePassword(req.Length, req.Charset)
	if err != nil {
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}

	hash, err := pkgauth.HashPassword(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	usableTimes := req.UsableTimes
	if usableTimes == UsableTimesUnlimited {
		usableTimes = 0
	}

	now := time.Now()
	password := &models.Password{
		SiteCode:      req.SiteCode,
		Length:        req.Length,
		CreatedAt:     now,
		ExpiresAt:     now.AddDate(0, 0, req.ExpireDays),
		UsableTimes:   usableTimes,
		Hash:          hash,
		Hint:          pkgauth.MaskPassword(plaintext),
		DeviceAddress: req.DeviceAddress,
	}

	if err := s.passwords.Create(ctx, password); err != nil {
		return nil, fmt.Errorf("failed to persist password: %w", err)
	}

	s.logger.Info("ephemeral password generated",
		slog.String("password_id", password.ID),
		slog.String("site_code", string(password.SiteCode)))
	s.audit.LogCredentialAction("password_generated", password.ID, string(password.SiteCode), "")

	return &GeneratedPassword{
		ID:        password.ID,
		Plaintext: plaintext,
		CreatedAt: password.CreatedAt,
		ExpiresAt: password.ExpiresAt,
	}, nil
}

// ConsumePassword verifies a candidate against a specific password and, on
// a match, spends one use. The usability check and increment are one atomic
// store operation, so a final remaining use cannot be double-spent by
// concurrent redemptions.
func (s *CredentialService) ConsumePassword(ctx context.Context, id, candidate string) (*models.Password, error) {
	password, err := s.passwords.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredential
		}
		return nil, fmt.Errorf("failed to load password: %w", err)
	}

	if err := pkgauth.ComparePassword(password.Hash, candidate); err != nil {
		return nil, models.ErrInvalidCredential
	}

	consumed, err := s.passwords.Consume(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to consume password: %w", err)
	}
	if !consumed {
		// Expired or exhausted, possibly by a concurrent redemption.
		return nil, models.ErrInvalidCredential
	}

	password.UsedTimes++
	return password, nil
}

// FindAndConsume locates the site password matching a candidate and spends
// one use of it. Used by the site-scoped login flow, which only knows the
// scope and the plaintext.
func (s *CredentialService) FindAndConsume(ctx context.Context, siteCode models.SiteCode, candidate string) (*models.Password, error) {
	active, err := s.passwords.ActiveBySite(ctx, siteCode)
	if err != nil {
		return nil, fmt.Errorf("failed to list active passwords: %w", err)
	}

	for _, password := range active {
		if bcrypt.CompareHashAndPassword([]byte(password.Hash), []byte(candidate)) != nil {
			continue
		}
		consumed, err := s.passwords.Consume(ctx, password.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to consume password: %w", err)
		}
		if !consumed {
			continue
		}
		password.UsedTimes++
		return password, nil
	}

	return nil, models.ErrInvalidCredential
}

// RemovePassword deletes a password record.
func (s *CredentialService) RemovePassword(ctx context.Context, id string) error {
	if err := s.passwords.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.LogCredentialAction("password_removed", id, "", "")
	return nil
}

// ListPasswords returns every password record for the admin panel.
func (s *CredentialService) ListPasswords(ctx context.Context) ([]*models.Password, error) {
	return s.passwords.List(ctx)
}

// CleanupExpiredPasswords deletes all expired passwords in one batch and
// reports the count removed.
func (s *CredentialService) CleanupExpiredPasswords(ctx context.Context) (int64, error) {
	removed, err := s.passwords.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired passwords: %w", err)
	}
	if removed > 0 {
		s.logger.Info("expired passwords removed", slog.Int64("count", removed))
	}
	return removed, nil
}
