package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mbenek/sitegate/internal/database"
	"github.com/mbenek/sitegate/internal/models"
)

// PasswordRepository persists ephemeral site-scoped passwords.
type PasswordRepository struct {
	db *database.DB
}

// NewPasswordRepository creates a new PasswordRepository
func NewPasswordRepository(db *database.DB) *PasswordRepository {
	return &PasswordRepository{db: db}
}

const passwordColumns = `
	id, site_code, length, created_at, expires_at, usable_times, used_times,
	password_hash, password_hint, device_address`

// Create persists a new password record. The ID is assigned here.
func (r *PasswordRepository) Create(ctx context.Context, password *models.Password) error {
	password.ID = uuid.New().String()
	if password.CreatedAt.IsZero() {
		password.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO passwords
			(id, site_code, length, created_at, expires_at, usable_times, used_times, password_hash, password_hint, device_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		password.ID,
		password.SiteCode,
		password.Length,
		password.CreatedAt,
		password.ExpiresAt,
		password.UsableTimes,
		password.UsedTimes,
		password.Hash,
		password.Hint,
		password.DeviceAddress,
	)
	return database.MapPostgresError(err)
}

func (r *PasswordRepository) scanPassword(row interface{ Scan(...any) error }) (*models.Password, error) {
	var password models.Password
	err := row.Scan(
		&password.ID,
		&password.SiteCode,
		&password.Length,
		&password.CreatedAt,
		&password.ExpiresAt,
		&password.UsableTimes,
		&password.UsedTimes,
		&password.Hash,
		&password.Hint,
		&password.DeviceAddress,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &password, nil
}

// GetByID fetches a single password record.
func (r *PasswordRepository) GetByID(ctx context.Context, id string) (*models.Password, error) {
	query := `SELECT` + passwordColumns + ` FROM passwords WHERE id = $1`
	return r.scanPassword(r.db.Pool.QueryRow(ctx, query, id))
}

// ActiveBySite returns the unexpired, unexhausted candidates for a scope.
func (r *PasswordRepository) ActiveBySite(ctx context.Context, siteCode models.SiteCode) ([]*models.Password, error) {
	query := `
		SELECT` + passwordColumns + `
		FROM passwords
		WHERE site_code = $1 AND expires_at > now()
		  AND (usable_times = 0 OR used_times < usable_times)
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, siteCode)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var passwords []*models.Password
	for rows.Next() {
		password, err := r.scanPassword(rows)
		if err != nil {
			return nil, err
		}
		passwords = append(passwords, password)
	}
	return passwords, rows.Err()
}

// List returns every password record for the admin panel, newest first.
func (r *PasswordRepository) List(ctx context.Context) ([]*models.Password, error) {
	query := `SELECT` + passwordColumns + ` FROM passwords ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var passwords []*models.Password
	for rows.Next() {
		password, err := r.scanPassword(rows)
		if err != nil {
			return nil, err
		}
		passwords = append(passwords, password)
	}
	return passwords, rows.Err()
}

// Consume atomically spends one use of a password. The usability check and
// the increment are a single guarded UPDATE so two concurrent redemptions of
// a last remaining use cannot both succeed.
func (r *PasswordRepository) Consume(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE passwords SET used_times = used_times + 1
		WHERE id = $1 AND expires_at > now()
		  AND (usable_times = 0 OR used_times < usable_times)
	`

	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes a password record.
func (r *PasswordRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM passwords WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteExpired removes every expired password in one batch and reports the
// count removed.
func (r *PasswordRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM passwords WHERE expires_at <= now()`)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
