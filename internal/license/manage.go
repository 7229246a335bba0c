package license

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schoolresults/server/internal/apperr"
	"github.com/schoolresults/server/internal/validation"
	"go.uber.org/zap"
)

// Management actions
const (
	ActionRenew      = "renew"
	ActionDeactivate = "deactivate"
	ActionDelete     = "delete"
)

// ManageInput is the request of the license management endpoint
type ManageInput struct {
	Action      string `json:"action"`
	LicenseID   string `json:"licenseId" validate:"required,uuid"`
	RenewMonths *int   `json:"renewMonths" validate:"omitempty,min=1"`
}

// ManageResult carries the new expiry for renewals and nothing for the other actions
type ManageResult struct {
	NewExpiry *time.Time `json:"newExpiry,omitempty"`
}

// Manage dispatches a management action on a license
func (s *Service) Manage(ctx context.Context, in ManageInput) (ManageResult, error) {
	in.Action = strings.TrimSpace(in.Action)
	in.LicenseID = strings.TrimSpace(in.LicenseID)

	switch in.Action {
	case ActionRenew, ActionDeactivate, ActionDelete:
	default:
		return ManageResult{}, apperr.New(apperr.KindUnknownAction, "unknown action: "+in.Action)
	}
	if err := validation.Struct(in); err != nil {
		return ManageResult{}, err
	}
	id, err := uuid.Parse(in.LicenseID)
	if err != nil {
		return ManageResult{}, apperr.Validation("licenseId must be a valid UUID")
	}

	switch in.Action {
	case ActionRenew:
		expiry, err := s.Renew(ctx, id, intOr(in.RenewMonths, DefaultRenewMonths))
		if err != nil {
			return ManageResult{}, err
		}
		return ManageResult{NewExpiry: &expiry}, nil
	case ActionDeactivate:
		return ManageResult{}, s.Deactivate(ctx, id)
	default:
		return ManageResult{}, s.Delete(ctx, id)
	}
}

// Renew extends the license by months, counted from the later of its current expiry and now,
// and reactivates it. Repeated renewals keep advancing the expiry.
func (s *Service) Renew(ctx context.Context, id uuid.UUID, months int) (expiry time.Time, err error) {
	defer func() { s.metrics.LicenseOp(ActionRenew, err) }()

	if months < 1 {
		return time.Time{}, apperr.Validation("renewMonths must be at least 1")
	}

	current, err := s.licenses.GetByID(ctx, id)
	if err != nil {
		return time.Time{}, translate(err, "license not found")
	}

	base := s.now()
	if current.ExpiryDate.After(base) {
		base = current.ExpiryDate
	}

	renewed, err := s.licenses.Renew(ctx, id, base.AddDate(0, months, 0))
	if err != nil {
		return time.Time{}, translate(err, "license not found")
	}

	s.log.Info("license renewed",
		zap.String("license_id", id.String()),
		zap.Int("months", months),
		zap.Time("expiry_date", renewed.ExpiryDate),
	)
	return renewed.ExpiryDate, nil
}

// Deactivate marks the license unusable. It is idempotent and a no-op for unknown ids.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (err error) {
	defer func() { s.metrics.LicenseOp(ActionDeactivate, err) }()

	if err := s.licenses.SetActive(ctx, id, false); err != nil {
		return apperr.Store(err)
	}
	s.log.Info("license deactivated", zap.String("license_id", id.String()))
	return nil
}

// Delete removes the license's device activations and then the license. Unknown ids are a no-op.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer func() { s.metrics.LicenseOp(ActionDelete, err) }()

	if err := s.licenses.Delete(ctx, id); err != nil {
		return apperr.Store(err)
	}
	s.log.Info("license deleted", zap.String("license_id", id.String()))
	return nil
}
