package license

import (
	"context"
	"strings"

	"github.com/schoolresults/server/internal/apperr"
	"github.com/schoolresults/server/internal/auth"
	"github.com/schoolresults/server/internal/model"
)

// LookupResult is the public state of a license
type LookupResult struct {
	Data  model.LicenseView `json:"data"`
	Token string            `json:"token,omitempty"`
}

// RecoverResult is the last known license state of a device
type RecoverResult struct {
	Data  model.RecoveredSession `json:"data"`
	Token string                 `json:"token,omitempty"`
}

// Lookup resolves a license key to the license and its school's public fields. The signed
// token names deviceID only when that device holds an active activation on the license.
func (s *Service) Lookup(ctx context.Context, licenseKey, deviceID string) (res LookupResult, err error) {
	defer func() { s.metrics.LicenseOp("lookup", err) }()

	licenseKey = strings.TrimSpace(licenseKey)
	if licenseKey == "" {
		return LookupResult{}, apperr.Validation("licenseKey is required")
	}

	found, err := s.licenses.GetByKey(ctx, licenseKey)
	if err != nil {
		return LookupResult{}, translate(err, "invalid license key")
	}

	boundDevice := ""
	if deviceID = strings.TrimSpace(deviceID); deviceID != "" {
		bound, err := s.devices.IsBound(ctx, found.License.ID, deviceID)
		if err != nil {
			return LookupResult{}, apperr.Store(err)
		}
		if bound {
			boundDevice = deviceID
		}
	}

	view := found.View()
	token, err := s.sign(grantOf(view, boundDevice))
	if err != nil {
		return LookupResult{}, err
	}
	return LookupResult{Data: view, Token: token}, nil
}

// Recover returns the license state behind the device's most recently seen active activation.
// Validity flags are returned as stored; callers re-check expiry and is_active themselves.
func (s *Service) Recover(ctx context.Context, deviceID string) (res RecoverResult, err error) {
	defer func() { s.metrics.LicenseOp("recover", err) }()

	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return RecoverResult{}, apperr.Validation("deviceId is required")
	}

	session, err := s.devices.FindLatestActive(ctx, deviceID)
	if err != nil {
		return RecoverResult{}, translate(err, "no prior session for this device")
	}

	token, err := s.sign(auth.LicenseGrant{
		LicenseID:  session.LicenseID,
		SchoolID:   session.SchoolID,
		DeviceID:   deviceID,
		IsTrial:    session.IsTrial,
		IsActive:   session.LicenseActive,
		ExpiryDate: session.ExpiryDate,
	})
	if err != nil {
		return RecoverResult{}, err
	}
	return RecoverResult{Data: session, Token: token}, nil
}

func grantOf(view model.LicenseView, deviceID string) auth.LicenseGrant {
	return auth.LicenseGrant{
		LicenseID:  view.ID,
		SchoolID:   view.SchoolID,
		DeviceID:   deviceID,
		IsTrial:    view.IsTrial,
		IsActive:   view.IsActive,
		ExpiryDate: view.ExpiryDate,
	}
}
