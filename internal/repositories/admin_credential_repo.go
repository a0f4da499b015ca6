package repositories

import (
	"context"

	"github.com/mbenek/sitegate/internal/database"
	"github.com/mbenek/sitegate/internal/models"
)

// AdminCredentialRepository persists the singleton administrator credential.
type AdminCredentialRepository struct {
	db *database.DB
}

// NewAdminCredentialRepository creates a new AdminCredentialRepository
func NewAdminCredentialRepository(db *database.DB) *AdminCredentialRepository {
	return &AdminCredentialRepository{db: db}
}

// Get fetches the singleton credential and IP denylist.
func (r *AdminCredentialRepository) Get(ctx context.Context) (*models.AdminCredential, error) {
	query := `SELECT password_hash, last_changed_on, blocked_ips FROM admin_credential WHERE singleton`

	var cred models.AdminCredential
	err := r.db.Pool.QueryRow(ctx, query).Scan(&cred.Hash, &cred.LastChangedOn, &cred.BlockedIPs)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &cred, nil
}

// Ensure inserts the singleton row with the given hash if none exists yet.
// Used at startup to bootstrap the admin credential from the environment.
func (r *AdminCredentialRepository) Ensure(ctx context.Context, hash string) error {
	query := `
		INSERT INTO admin_credential (singleton, password_hash)
		VALUES (TRUE, $1)
		ON CONFLICT (singleton) DO NOTHING
	`

	_, err := r.db.Pool.Exec(ctx, query, hash)
	return database.MapPostgresError(err)
}

// UpdatePassword replaces the hash and bumps last_changed_on. Gated upstream
// by an existing administrator session.
func (r *AdminCredentialRepository) UpdatePassword(ctx context.Context, hash string) error {
	query := `UPDATE admin_credential SET password_hash = $1, last_changed_on = now() WHERE singleton`

	tag, err := r.db.Pool.Exec(ctx, query, hash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
