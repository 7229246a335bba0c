package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/schoolresults/server/internal/model"
)

// ErrAdminExists is returned when creating an admin whose username is taken
var ErrAdminExists = errors.New("admin already exists")

type adminRepo struct {
	db *sqlx.DB
}

// NewAdminRepo creates a new AdminRepo instance
func NewAdminRepo(db *sqlx.DB) AdminRepo {
	return &adminRepo{db: db}
}

// Create inserts a system admin
func (r *adminRepo) Create(ctx context.Context, username, passwordHash string) (model.SystemAdmin, error) {
	var admin model.SystemAdmin
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO system_admins (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, username, password_hash, created_at
	`, username, passwordHash).StructScan(&admin)
	if err != nil {
		if isUniqueViolation(err, "") {
			return model.SystemAdmin{}, fmt.Errorf("admin %q: %w", username, ErrAdminExists)
		}
		return model.SystemAdmin{}, fmt.Errorf("insert admin: %w", err)
	}
	return admin, nil
}

// GetByUsername retrieves a system admin by username
func (r *adminRepo) GetByUsername(ctx context.Context, username string) (model.SystemAdmin, error) {
	var admin model.SystemAdmin
	err := r.db.GetContext(ctx, &admin, `
		SELECT id, username, password_hash, created_at
		FROM system_admins
		WHERE username = $1
	`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SystemAdmin{}, fmt.Errorf("admin %q: %w", username, ErrNotFound)
		}
		return model.SystemAdmin{}, fmt.Errorf("query admin: %w", err)
	}
	return admin, nil
}
