package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/schoolresults/server/internal/model"
)

const sessionColumns = `id, token_hash, admin_id, expires_at, last_activity, created_at`

type sessionRepo struct {
	db *sqlx.DB
}

// NewSessionRepo creates a new SessionRepo instance
func NewSessionRepo(db *sqlx.DB) SessionRepo {
	return &sessionRepo{db: db}
}

// Create inserts a new admin session
func (r *sessionRepo) Create(ctx context.Context, adminID uuid.UUID, tokenHash string, expiresAt, now time.Time) (model.AdminSession, error) {
	var s model.AdminSession
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO system_admin_sessions (token_hash, admin_id, expires_at, last_activity)
		VALUES ($1, $2, $3, $4)
		RETURNING `+sessionColumns,
		tokenHash, adminID, expiresAt, now,
	).StructScan(&s)
	if err != nil {
		return model.AdminSession{}, fmt.Errorf("insert admin session: %w", err)
	}
	return s, nil
}

// FindByTokenHash returns the session regardless of expiry; callers decide what expiry means.
func (r *sessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (model.AdminSession, error) {
	var s model.AdminSession
	err := r.db.GetContext(ctx, &s, `
		SELECT `+sessionColumns+` FROM system_admin_sessions WHERE token_hash = $1
	`, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AdminSession{}, fmt.Errorf("admin session: %w", ErrNotFound)
		}
		return model.AdminSession{}, fmt.Errorf("find admin session: %w", err)
	}
	return s, nil
}

// Touch sets last_activity for the session
func (r *sessionRepo) Touch(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE system_admin_sessions SET last_activity = $2 WHERE id = $1
	`, id, now)
	if err != nil {
		return fmt.Errorf("touch admin session: %w", err)
	}
	return nil
}

// Delete removes the session
func (r *sessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM system_admin_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete admin session: %w", err)
	}
	return nil
}

// DeleteExpired removes every session whose expires_at is before now
func (r *sessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM system_admin_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired admin sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
