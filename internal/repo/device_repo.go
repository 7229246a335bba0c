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

type deviceRepo struct {
	db *sqlx.DB
}

// NewDeviceRepo creates a new DeviceRepo instance
func NewDeviceRepo(db *sqlx.DB) DeviceRepo {
	return &deviceRepo{db: db}
}

// Bind activates a device on a license. The license row is locked so concurrent binds
// cannot both take the last free slot.
func (r *deviceRepo) Bind(ctx context.Context, licenseID uuid.UUID, deviceID string, maxDevices int, now time.Time) (model.DeviceActivation, error) {
	var activation model.DeviceActivation
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var locked uuid.UUID
		err := tx.QueryRowxContext(ctx, `SELECT id FROM licenses WHERE id = $1 FOR UPDATE`, licenseID).Scan(&locked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("license %s: %w", licenseID, ErrNotFound)
			}
			return fmt.Errorf("lock license: %w", err)
		}

		var others int
		err = tx.GetContext(ctx, &others, `
			SELECT COUNT(*) FROM device_activations
			WHERE license_id = $1 AND is_active AND device_id <> $2
		`, licenseID, deviceID)
		if err != nil {
			return fmt.Errorf("count active devices: %w", err)
		}
		if others >= maxDevices {
			return ErrDeviceLimit
		}

		err = tx.QueryRowxContext(ctx, `
			INSERT INTO device_activations (device_id, license_id, is_active, last_seen_at)
			VALUES ($1, $2, true, $3)
			ON CONFLICT (license_id, device_id)
			DO UPDATE SET is_active = true, last_seen_at = EXCLUDED.last_seen_at
			RETURNING id, device_id, license_id, is_active, last_seen_at, created_at
		`, deviceID, licenseID, now).StructScan(&activation)
		if err != nil {
			return fmt.Errorf("upsert device activation: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.DeviceActivation{}, err
	}
	return activation, nil
}

// Release marks the device's activation on the license inactive
func (r *deviceRepo) Release(ctx context.Context, licenseID uuid.UUID, deviceID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE device_activations SET is_active = false
		WHERE license_id = $1 AND device_id = $2
	`, licenseID, deviceID)
	if err != nil {
		return fmt.Errorf("release device activation: %w", err)
	}
	return nil
}

// IsBound reports whether the device holds an active activation on the license
func (r *deviceRepo) IsBound(ctx context.Context, licenseID uuid.UUID, deviceID string) (bool, error) {
	var bound bool
	err := r.db.GetContext(ctx, &bound, `
		SELECT EXISTS (
			SELECT 1 FROM device_activations
			WHERE license_id = $1 AND device_id = $2 AND is_active
		)
	`, licenseID, deviceID)
	if err != nil {
		return false, fmt.Errorf("query device activation: %w", err)
	}
	return bound, nil
}

// recoveredRow is an activation joined with its license and school. License and
// school columns are nullable because the join is a LEFT JOIN.
type recoveredRow struct {
	ActivationID       uuid.UUID      `db:"activation_id"`
	LicenseID          uuid.UUID      `db:"license_id"`
	LicenseKey         sql.NullString `db:"license_key"`
	SchoolID           uuid.NullUUID  `db:"school_id"`
	ExpiryDate         sql.NullTime   `db:"expiry_date"`
	IsTrial            sql.NullBool   `db:"is_trial"`
	IsActive           sql.NullBool   `db:"is_active"`
	SchoolName         sql.NullString `db:"school_name"`
	SchoolDirectorName sql.NullString `db:"school_director_name"`
	SchoolLogoURL      *string        `db:"school_logo_url"`
}

// FindLatestActive returns the newest active activation for the device with its license and school.
// ErrNotFound is returned when there is no activation or its license no longer exists.
func (r *deviceRepo) FindLatestActive(ctx context.Context, deviceID string) (model.RecoveredSession, error) {
	var row recoveredRow
	err := r.db.GetContext(ctx, &row, `
		SELECT da.id AS activation_id, da.license_id,
		       l.license_key, l.school_id, l.expiry_date, l.is_trial, l.is_active,
		       s.name AS school_name, s.director_name AS school_director_name,
		       s.logo_url AS school_logo_url
		FROM device_activations da
		LEFT JOIN licenses l ON l.id = da.license_id
		LEFT JOIN schools s ON s.id = l.school_id
		WHERE da.device_id = $1 AND da.is_active
		ORDER BY da.last_seen_at DESC
		LIMIT 1
	`, deviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RecoveredSession{}, fmt.Errorf("device activation: %w", ErrNotFound)
		}
		return model.RecoveredSession{}, fmt.Errorf("query device activation: %w", err)
	}
	if !row.LicenseKey.Valid || !row.SchoolID.Valid {
		return model.RecoveredSession{}, fmt.Errorf("license for activation %s: %w", row.ActivationID, ErrNotFound)
	}

	return model.RecoveredSession{
		LicenseKey: row.LicenseKey.String,
		LicenseID:  row.LicenseID,
		SchoolID:   row.SchoolID.UUID,
		School: model.PublicSchool{
			Name:         row.SchoolName.String,
			DirectorName: row.SchoolDirectorName.String,
			LogoURL:      row.SchoolLogoURL,
		},
		ExpiryDate:    row.ExpiryDate.Time,
		IsTrial:       row.IsTrial.Bool,
		LicenseActive: row.IsActive.Bool,
	}, nil
}
