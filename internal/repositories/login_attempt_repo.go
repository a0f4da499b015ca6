package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mbenek/sitegate/internal/database"
	"github.com/mbenek/sitegate/internal/models"
)

// LoginAttemptRepository persists the audit ledger of authentication
// attempts. Records are append-only: after creation the only writes are
// the one-shot token attachment and the invoked flag.
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// AttemptHandle refers to a freshly created ledger entry and carries its
// single permitted post-creation mutation.
type AttemptHandle struct {
	ID   string
	repo *LoginAttemptRepository
}

// Save creates a new immutable ledger entry. The attempt's ID and time are
// assigned here; the returned handle allows one token attachment.
func (r *LoginAttemptRepository) Save(ctx context.Context, attempt *models.LoginAttempt) (*AttemptHandle, error) {
	attempt.ID = uuid.New().String()
	if attempt.AttemptTime.IsZero() {
		attempt.AttemptTime = time.Now()
	}

	query := `
		INSERT INTO login_attempts
			(id, ip, user_agent, address, site_code, is_administrator, success, failed_reason, attempt_time, password_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.IP,
		attempt.UserAgent,
		attempt.Address,
		attempt.SiteCode,
		attempt.IsAdministrator,
		attempt.Success,
		attempt.FailedReason,
		attempt.AttemptTime,
		attempt.PasswordID,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &AttemptHandle{ID: attempt.ID, repo: r}, nil
}

// AttachSessionTokens performs the one-time attachment of browser session
// tokens. The guard clause makes a second attachment a conflict rather than
// a silent overwrite.
func (h *AttemptHandle) AttachSessionTokens(ctx context.Context, tokens *models.SessionTokens) error {
	query := `
		UPDATE login_attempts SET session_tokens = $2
		WHERE id = $1 AND success = TRUE
		  AND session_tokens IS NULL AND client_app_tokens IS NULL
	`

	tag, err := h.repo.db.Pool.Exec(ctx, query, h.ID, tokens)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attempt %s: %w", h.ID, models.ErrConflict)
	}
	return nil
}

// AttachClientAppTokens performs the one-time attachment of mobile-client
// tokens, under the same guard as AttachSessionTokens.
func (h *AttemptHandle) AttachClientAppTokens(ctx context.Context, tokens *models.ClientAppTokens) error {
	query := `
		UPDATE login_attempts SET client_app_tokens = $2
		WHERE id = $1 AND success = TRUE
		  AND session_tokens IS NULL AND client_app_tokens IS NULL
	`

	tag, err := h.repo.db.Pool.Exec(ctx, query, h.ID, tokens)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attempt %s: %w", h.ID, models.ErrConflict)
	}
	return nil
}

const attemptColumns = `
	id, ip, user_agent, address, site_code, is_administrator, success,
	failed_reason, attempt_time, session_tokens, client_app_tokens, invoked, password_id`

func (r *LoginAttemptRepository) scanAttempt(row interface{ Scan(...any) error }) (*models.LoginAttempt, error) {
	var attempt models.LoginAttempt
	err := row.Scan(
		&attempt.ID,
		&attempt.IP,
		&attempt.UserAgent,
		&attempt.Address,
		&attempt.SiteCode,
		&attempt.IsAdministrator,
		&attempt.Success,
		&attempt.FailedReason,
		&attempt.AttemptTime,
		&attempt.SessionTokens,
		&attempt.ClientAppTokens,
		&attempt.Invoked,
		&attempt.PasswordID,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &attempt, nil
}

// GetByID fetches a single ledger entry. Token verification calls this on
// every request so revocation takes effect immediately.
func (r *LoginAttemptRepository) GetByID(ctx context.Context, id string) (*models.LoginAttempt, error) {
	query := `SELECT` + attemptColumns + ` FROM login_attempts WHERE id = $1`
	return r.scanAttempt(r.db.Pool.QueryRow(ctx, query, id))
}

// Invoke permanently revokes the entry's tokens.
func (r *LoginAttemptRepository) Invoke(ctx context.Context, id string) error {
	query := `UPDATE login_attempts SET invoked = TRUE WHERE id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RecentByScope returns the most recent attempts for an (ip, siteCode) pair
// within the trailing window, newest first. This is the rate limiter's only
// read path.
func (r *LoginAttemptRepository) RecentByScope(ctx context.Context, ip string, siteCode models.SiteCode, since time.Time, limit int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT` + attemptColumns + `
		FROM login_attempts
		WHERE ip = $1 AND site_code = $2 AND attempt_time >= $3
		ORDER BY attempt_time DESC
		LIMIT $4
	`

	rows, err := r.db.Pool.Query(ctx, query, ip, siteCode, since, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var attempts []*models.LoginAttempt
	for rows.Next() {
		attempt, err := r.scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// List returns a page of ledger entries for the admin panel, newest first.
func (r *LoginAttemptRepository) List(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT` + attemptColumns + `
		FROM login_attempts
		ORDER BY attempt_time DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var attempts []*models.LoginAttempt
	for rows.Next() {
		attempt, err := r.scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}
