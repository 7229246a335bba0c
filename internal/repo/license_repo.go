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
	"github.com/sethvargo/go-retry"
)

const (
	// maxKeyAttempts bounds retries when generate_license_key() collides with an existing key.
	maxKeyAttempts = 5

	licenseKeyConstraint = "licenses_license_key_key"

	licenseColumns = `id, license_key, school_id, max_devices, validity_months,
		start_date, expiry_date, is_active, is_trial, created_at`
)

type licenseRepo struct {
	db *sqlx.DB
}

// NewLicenseRepo creates a new LicenseRepo instance
func NewLicenseRepo(db *sqlx.DB) LicenseRepo {
	return &licenseRepo{db: db}
}

// CreateWithSchool inserts the school, the license and, for NewLicense.DeviceID, its first
// activation atomically, retrying on key collisions.
func (r *licenseRepo) CreateWithSchool(ctx context.Context, newSchool model.NewSchool, newLicense model.NewLicense) (model.School, model.License, error) {
	var (
		school  model.School
		license model.License
	)

	backoff := retry.WithMaxRetries(maxKeyAttempts-1, retry.NewConstant(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
			var err error
			school, err = insertSchool(ctx, tx, newSchool)
			if err != nil {
				return err
			}
			license, err = insertLicense(ctx, tx, school.ID, newLicense)
			if isUniqueViolation(err, licenseKeyConstraint) {
				return retry.RetryableError(err)
			}
			if err != nil || newLicense.DeviceID == "" {
				return err
			}
			return insertActivation(ctx, tx, license.ID, newLicense.DeviceID, newLicense.StartDate)
		})
	})
	if err != nil {
		return model.School{}, model.License{}, err
	}
	return school, license, nil
}

func insertSchool(ctx context.Context, tx *sqlx.Tx, s model.NewSchool) (model.School, error) {
	var school model.School
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO schools (name, director_name, email, phone, address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, director_name, email, phone, address, logo_url, created_at
	`, s.Name, s.DirectorName, s.Email, s.Phone, s.Address).StructScan(&school)
	if err != nil {
		return model.School{}, fmt.Errorf("insert school: %w", err)
	}
	return school, nil
}

func insertLicense(ctx context.Context, tx *sqlx.Tx, schoolID uuid.UUID, l model.NewLicense) (model.License, error) {
	var license model.License
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO licenses (license_key, school_id, max_devices, validity_months,
		                      start_date, expiry_date, is_active, is_trial)
		VALUES (generate_license_key(), $1, $2, $3, $4, $5, true, $6)
		RETURNING `+licenseColumns,
		schoolID, l.MaxDevices, l.ValidityMonths, l.StartDate, l.ExpiryDate, l.IsTrial,
	).StructScan(&license)
	if err != nil {
		return model.License{}, fmt.Errorf("insert license: %w", err)
	}
	return license, nil
}

func insertActivation(ctx context.Context, tx *sqlx.Tx, licenseID uuid.UUID, deviceID string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO device_activations (device_id, license_id, is_active, last_seen_at)
		VALUES ($1, $2, true, $3)
	`, deviceID, licenseID, now)
	if err != nil {
		return fmt.Errorf("insert device activation: %w", err)
	}
	return nil
}

// GetByID retrieves a license by ID
func (r *licenseRepo) GetByID(ctx context.Context, id uuid.UUID) (model.License, error) {
	var license model.License
	err := r.db.GetContext(ctx, &license, `SELECT `+licenseColumns+` FROM licenses WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.License{}, fmt.Errorf("license %s: %w", id, ErrNotFound)
		}
		return model.License{}, fmt.Errorf("query license: %w", err)
	}
	return license, nil
}

// licenseSchoolRow is a license row joined with its school's columns
type licenseSchoolRow struct {
	model.License
	SchoolName         string    `db:"school_name"`
	SchoolDirectorName string    `db:"school_director_name"`
	SchoolEmail        *string   `db:"school_email"`
	SchoolPhone        *string   `db:"school_phone"`
	SchoolAddress      *string   `db:"school_address"`
	SchoolLogoURL      *string   `db:"school_logo_url"`
	SchoolCreatedAt    time.Time `db:"school_created_at"`
}

func (row licenseSchoolRow) joined() model.LicenseWithSchool {
	return model.LicenseWithSchool{
		License: row.License,
		School: model.School{
			ID:           row.License.SchoolID,
			Name:         row.SchoolName,
			DirectorName: row.SchoolDirectorName,
			Email:        row.SchoolEmail,
			Phone:        row.SchoolPhone,
			Address:      row.SchoolAddress,
			LogoURL:      row.SchoolLogoURL,
			CreatedAt:    row.SchoolCreatedAt,
		},
	}
}

// GetByKey retrieves a license and its school by license key
func (r *licenseRepo) GetByKey(ctx context.Context, licenseKey string) (model.LicenseWithSchool, error) {
	var row licenseSchoolRow
	err := r.db.GetContext(ctx, &row, `
		SELECT l.id, l.license_key, l.school_id, l.max_devices, l.validity_months,
		       l.start_date, l.expiry_date, l.is_active, l.is_trial, l.created_at,
		       s.name AS school_name, s.director_name AS school_director_name,
		       s.email AS school_email, s.phone AS school_phone, s.address AS school_address,
		       s.logo_url AS school_logo_url, s.created_at AS school_created_at
		FROM licenses l
		JOIN schools s ON s.id = l.school_id
		WHERE l.license_key = $1
	`, licenseKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LicenseWithSchool{}, fmt.Errorf("license key: %w", ErrNotFound)
		}
		return model.LicenseWithSchool{}, fmt.Errorf("query license by key: %w", err)
	}
	return row.joined(), nil
}

// Renew sets a new expiry date and reactivates the license
func (r *licenseRepo) Renew(ctx context.Context, id uuid.UUID, expiry time.Time) (model.License, error) {
	var license model.License
	err := r.db.QueryRowxContext(ctx, `
		UPDATE licenses
		SET expiry_date = $2, is_active = true
		WHERE id = $1
		RETURNING `+licenseColumns,
		id, expiry,
	).StructScan(&license)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.License{}, fmt.Errorf("license %s: %w", id, ErrNotFound)
		}
		return model.License{}, fmt.Errorf("renew license: %w", err)
	}
	return license, nil
}

// SetActive sets is_active for the license
func (r *licenseRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE licenses SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set license active: %w", err)
	}
	return nil
}

// Delete removes the license's device activations first, then the license itself.
func (r *licenseRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM device_activations WHERE license_id = $1`, id); err != nil {
			return fmt.Errorf("delete device activations: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM licenses WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete license: %w", err)
		}
		return nil
	})
}
