package license

import (
	"context"
	"strings"

	"github.com/schoolresults/server/internal/apperr"
	"github.com/schoolresults/server/internal/logger"
	"github.com/schoolresults/server/internal/model"
	"github.com/schoolresults/server/internal/validation"
	"go.uber.org/zap"
)

// DeviceInput identifies a device on a license
type DeviceInput struct {
	LicenseKey string `json:"licenseKey" validate:"required"`
	DeviceID   string `json:"deviceId" validate:"required,max=128"`
}

// TrialInput is the request for a self-service trial license
type TrialInput struct {
	SchoolName   string `json:"schoolName" validate:"required"`
	DirectorName string `json:"directorName"`
	DeviceID     string `json:"deviceId" validate:"required,max=128"`
}

// ActivationResult is the license a device is now bound to
type ActivationResult struct {
	LicenseKey string            `json:"licenseKey,omitempty"`
	Data       model.LicenseView `json:"data"`
	Token      string            `json:"token,omitempty"`
}

func (in *DeviceInput) normalize() error {
	in.LicenseKey = strings.TrimSpace(in.LicenseKey)
	in.DeviceID = strings.TrimSpace(in.DeviceID)
	return validation.Struct(in)
}

// Activate binds the device to the license. Inactive and expired licenses are refused, and
// a device that is not yet bound needs a free slot under max_devices.
func (s *Service) Activate(ctx context.Context, in DeviceInput) (res ActivationResult, err error) {
	defer func() { s.metrics.LicenseOp("activate", err) }()

	if err := in.normalize(); err != nil {
		return ActivationResult{}, err
	}

	found, err := s.licenses.GetByKey(ctx, in.LicenseKey)
	if err != nil {
		return ActivationResult{}, translate(err, "invalid license key")
	}

	now := s.now()
	if !found.License.IsActive {
		return ActivationResult{}, apperr.New(apperr.KindLicenseInactive, "license is deactivated")
	}
	if !found.License.Usable(now) {
		return ActivationResult{}, apperr.New(apperr.KindLicenseExpired, "license has expired")
	}

	if _, err := s.devices.Bind(ctx, found.License.ID, in.DeviceID, found.License.MaxDevices, now); err != nil {
		return ActivationResult{}, translate(err, "invalid license key")
	}

	s.log.Info("device activated",
		zap.String("license_id", found.License.ID.String()),
		zap.String("license_key", logger.MaskKey(in.LicenseKey)),
		zap.String("device_id", in.DeviceID),
	)

	view := found.View()
	token, err := s.sign(grantOf(view, in.DeviceID))
	if err != nil {
		return ActivationResult{}, err
	}
	return ActivationResult{Data: view, Token: token}, nil
}

// Release unbinds the device from the license so recovery no longer resumes it
func (s *Service) Release(ctx context.Context, in DeviceInput) (err error) {
	defer func() { s.metrics.LicenseOp("release", err) }()

	if err := in.normalize(); err != nil {
		return err
	}

	found, err := s.licenses.GetByKey(ctx, in.LicenseKey)
	if err != nil {
		return translate(err, "invalid license key")
	}
	if err := s.devices.Release(ctx, found.License.ID, in.DeviceID); err != nil {
		return apperr.Store(err)
	}

	s.log.Info("device released",
		zap.String("license_id", found.License.ID.String()),
		zap.String("device_id", in.DeviceID),
	)
	return nil
}

// StartTrial provisions a single-device trial license for a new school and binds the device to it
func (s *Service) StartTrial(ctx context.Context, in TrialInput) (res ActivationResult, err error) {
	defer func() { s.metrics.LicenseOp("trial", err) }()

	in.SchoolName = strings.TrimSpace(in.SchoolName)
	in.DirectorName = strings.TrimSpace(in.DirectorName)
	in.DeviceID = strings.TrimSpace(in.DeviceID)
	if err := validation.Struct(in); err != nil {
		return ActivationResult{}, err
	}

	now := s.now()
	school, license, err := s.licenses.CreateWithSchool(ctx,
		model.NewSchool{Name: in.SchoolName, DirectorName: in.DirectorName},
		model.NewLicense{
			MaxDevices: 1,
			StartDate:  now,
			ExpiryDate: now.AddDate(0, 0, s.trialDays),
			IsTrial:    true,
			DeviceID:   in.DeviceID,
		},
	)
	if err != nil {
		return ActivationResult{}, apperr.Store(err)
	}

	s.log.Info("trial license started",
		zap.String("license_id", license.ID.String()),
		zap.String("school_id", school.ID.String()),
		zap.String("device_id", in.DeviceID),
		zap.Int("trial_days", s.trialDays),
	)

	view := model.LicenseWithSchool{License: license, School: school}.View()
	token, err := s.sign(grantOf(view, in.DeviceID))
	if err != nil {
		return ActivationResult{}, err
	}
	return ActivationResult{LicenseKey: license.LicenseKey, Data: view, Token: token}, nil
}
