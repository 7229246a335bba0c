package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/schoolresults/server/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrDeviceLimit is returned when binding a device would exceed the license's max_devices
	ErrDeviceLimit = errors.New("device limit reached")
)

// LicenseRepo defines the interface for license repository operations
type LicenseRepo interface {
	// CreateWithSchool inserts a school and a license owned by it in one transaction.
	// The license key is produced by the store's generate_license_key() routine. When
	// license.DeviceID is set the device is bound to the new license in the same transaction.
	CreateWithSchool(ctx context.Context, school model.NewSchool, license model.NewLicense) (model.School, model.License, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.License, error)
	GetByKey(ctx context.Context, licenseKey string) (model.LicenseWithSchool, error)
	// Renew sets expiry_date and forces is_active=true.
	Renew(ctx context.Context, id uuid.UUID, expiry time.Time) (model.License, error)
	// SetActive is a no-op for unknown ids.
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	// Delete removes the license's device activations, then the license. Unknown ids are a no-op.
	Delete(ctx context.Context, id uuid.UUID) error
}

// DeviceRepo defines the interface for device activation repository operations
type DeviceRepo interface {
	// Bind activates deviceID on the license and refreshes last_seen_at. A device that is not
	// yet active counts against maxDevices; ErrDeviceLimit is returned when no slot is free.
	Bind(ctx context.Context, licenseID uuid.UUID, deviceID string, maxDevices int, now time.Time) (model.DeviceActivation, error)
	// Release marks the device's activation on the license inactive.
	Release(ctx context.Context, licenseID uuid.UUID, deviceID string) error
	// IsBound reports whether the device holds an active activation on the license.
	IsBound(ctx context.Context, licenseID uuid.UUID, deviceID string) (bool, error)
	// FindLatestActive returns the most recently seen active activation for the device,
	// joined with its license and school.
	FindLatestActive(ctx context.Context, deviceID string) (model.RecoveredSession, error)
}

// SessionRepo defines the interface for system admin session repository operations
type SessionRepo interface {
	Create(ctx context.Context, adminID uuid.UUID, tokenHash string, expiresAt, now time.Time) (model.AdminSession, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (model.AdminSession, error)
	Touch(ctx context.Context, id uuid.UUID, now time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AdminRepo defines the interface for system admin repository operations
type AdminRepo interface {
	Create(ctx context.Context, username, passwordHash string) (model.SystemAdmin, error)
	GetByUsername(ctx context.Context, username string) (model.SystemAdmin, error)
}

// withTx runs fn inside a transaction, rolling back on error.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique violation on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && (constraint == "" || pqErr.Constraint == constraint)
}
