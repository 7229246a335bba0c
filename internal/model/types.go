package model

import (
	"time"

	"github.com/google/uuid"
)

// School represents a school that owns a license
type School struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	DirectorName string    `db:"director_name" json:"director_name"`
	Email        *string   `db:"email" json:"email,omitempty"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	Address      *string   `db:"address" json:"address,omitempty"`
	LogoURL      *string   `db:"logo_url" json:"logo_url,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// License is a time-bounded entitlement bound to a school
type License struct {
	ID             uuid.UUID `db:"id" json:"id"`
	LicenseKey     string    `db:"license_key" json:"license_key"`
	SchoolID       uuid.UUID `db:"school_id" json:"school_id"`
	MaxDevices     int       `db:"max_devices" json:"max_devices"`
	ValidityMonths int       `db:"validity_months" json:"validity_months"`
	StartDate      time.Time `db:"start_date" json:"start_date"`
	ExpiryDate     time.Time `db:"expiry_date" json:"expiry_date"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	IsTrial        bool      `db:"is_trial" json:"is_trial"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Usable reports whether the license grants access at the given instant.
// An inactive license is never usable, whatever its expiry date.
func (l License) Usable(now time.Time) bool {
	return l.IsActive && l.ExpiryDate.After(now)
}

// DeviceActivation records that a device has bound to a license
type DeviceActivation struct {
	ID         uuid.UUID `db:"id" json:"id"`
	DeviceID   string    `db:"device_id" json:"device_id"`
	LicenseID  uuid.UUID `db:"license_id" json:"license_id"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	LastSeenAt time.Time `db:"last_seen_at" json:"last_seen_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// SystemAdmin is an operator allowed to issue and manage licenses
type SystemAdmin struct {
	ID           uuid.UUID `db:"id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

// AdminSession represents a server-tracked admin session. Only the token hash is persisted.
type AdminSession struct {
	ID           uuid.UUID `db:"id"`
	TokenHash    string    `db:"token_hash"`
	AdminID      uuid.UUID `db:"admin_id"`
	ExpiresAt    time.Time `db:"expires_at"`
	LastActivity time.Time `db:"last_activity"`
	CreatedAt    time.Time `db:"created_at"`
}

// NewSchool holds the fields needed to insert a school
type NewSchool struct {
	Name         string
	DirectorName string
	Email        *string
	Phone        *string
	Address      *string
}

// NewLicense holds the fields needed to insert a license. The key is generated by the store.
type NewLicense struct {
	MaxDevices     int
	ValidityMonths int
	StartDate      time.Time
	ExpiryDate     time.Time
	IsTrial        bool
	// DeviceID, when set, is bound to the new license in the same transaction.
	DeviceID string
}

// PublicSchool is the part of a school that unauthenticated clients may see
type PublicSchool struct {
	Name         string  `json:"name"`
	DirectorName string  `json:"director_name"`
	LogoURL      *string `json:"logo_url"`
}

// LicenseView is the read-only projection returned by license lookups
type LicenseView struct {
	ID         uuid.UUID    `json:"id"`
	SchoolID   uuid.UUID    `json:"school_id"`
	IsActive   bool         `json:"is_active"`
	IsTrial    bool         `json:"is_trial"`
	ExpiryDate time.Time    `json:"expiry_date"`
	MaxDevices int          `json:"max_devices"`
	School     PublicSchool `json:"school"`
}

// LicenseWithSchool is a license joined with its owning school
type LicenseWithSchool struct {
	License License
	School  School
}

// View projects the joined row to its public form
func (lw LicenseWithSchool) View() LicenseView {
	return LicenseView{
		ID:         lw.License.ID,
		SchoolID:   lw.License.SchoolID,
		IsActive:   lw.License.IsActive,
		IsTrial:    lw.License.IsTrial,
		ExpiryDate: lw.License.ExpiryDate,
		MaxDevices: lw.License.MaxDevices,
		School: PublicSchool{
			Name:         lw.School.Name,
			DirectorName: lw.School.DirectorName,
			LogoURL:      lw.School.LogoURL,
		},
	}
}

// RecoveredSession is the last known license state for a device
type RecoveredSession struct {
	LicenseKey    string       `json:"licenseKey"`
	LicenseID     uuid.UUID    `json:"licenseId"`
	SchoolID      uuid.UUID    `json:"schoolId"`
	School        PublicSchool `json:"school"`
	ExpiryDate    time.Time    `json:"expiryDate"`
	IsTrial       bool         `json:"isTrial"`
	LicenseActive bool         `json:"licenseActive"`
}
