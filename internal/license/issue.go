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

// IssueInput is the request for a new school license
type IssueInput struct {
	SchoolName     string  `json:"schoolName" validate:"required"`
	DirectorName   string  `json:"directorName"`
	ValidityMonths *int    `json:"validityMonths" validate:"omitempty,min=1"`
	MaxDevices     *int    `json:"maxDevices" validate:"omitempty,min=1"`
	Email          *string `json:"email" validate:"omitempty,email"`
	Phone          *string `json:"phone"`
	Address        *string `json:"address"`
}

// IssueResult is the outcome of a license issuance
type IssueResult struct {
	LicenseKey string        `json:"licenseKey"`
	School     model.School  `json:"school"`
	License    model.License `json:"license"`
}

// Issue creates a school and an active, non-trial license owned by it. Both rows are
// written in one transaction, so a failed license insert leaves no school behind.
func (s *Service) Issue(ctx context.Context, in IssueInput) (res IssueResult, err error) {
	defer func() { s.metrics.LicenseOp("issue", err) }()

	in.SchoolName = strings.TrimSpace(in.SchoolName)
	in.DirectorName = strings.TrimSpace(in.DirectorName)
	in.Email, in.Phone, in.Address = optional(in.Email), optional(in.Phone), optional(in.Address)
	if err := validation.Struct(in); err != nil {
		return IssueResult{}, err
	}

	months := intOr(in.ValidityMonths, DefaultValidityMonths)
	now := s.now()
	school, license, err := s.licenses.CreateWithSchool(ctx,
		model.NewSchool{
			Name:         in.SchoolName,
			DirectorName: in.DirectorName,
			Email:        in.Email,
			Phone:        in.Phone,
			Address:      in.Address,
		},
		model.NewLicense{
			MaxDevices:     intOr(in.MaxDevices, DefaultMaxDevices),
			ValidityMonths: months,
			StartDate:      now,
			ExpiryDate:     now.AddDate(0, months, 0),
		},
	)
	if err != nil {
		return IssueResult{}, apperr.Store(err)
	}

	s.log.Info("license issued",
		zap.String("license_id", license.ID.String()),
		zap.String("school_id", school.ID.String()),
		zap.String("license_key", logger.MaskKey(license.LicenseKey)),
		zap.Int("validity_months", months),
	)
	return IssueResult{LicenseKey: license.LicenseKey, School: school, License: license}, nil
}
