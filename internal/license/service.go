// Package license implements issuance, management, lookup, device binding and
// device session recovery for school licenses.
package license

import (
	"errors"
	"strings"
	"time"

	"github.com/schoolresults/server/internal/apperr"
	"github.com/schoolresults/server/internal/auth"
	"github.com/schoolresults/server/internal/metrics"
	"github.com/schoolresults/server/internal/repo"
	"go.uber.org/zap"
)

const (
	DefaultValidityMonths = 12
	DefaultMaxDevices     = 1
	DefaultRenewMonths    = 12
	DefaultTrialDays      = 14
)

// TokenSigner signs offline license certificates
type TokenSigner interface {
	Sign(g auth.LicenseGrant) (string, error)
}

// Service implements the license operations on top of the license store
type Service struct {
	licenses repo.LicenseRepo
	devices  repo.DeviceRepo
	signer   TokenSigner

	trialDays int
	now       func() time.Time
	log       *zap.Logger
	metrics   *metrics.Metrics
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSigner makes lookup, activation, recovery and trial responses carry a signed certificate
func WithSigner(signer TokenSigner) Option {
	return func(s *Service) { s.signer = signer }
}

// WithTrialDays sets the validity of trial licenses
func WithTrialDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.trialDays = days
		}
	}
}

// NewService creates a new license service
func NewService(licenses repo.LicenseRepo, devices repo.DeviceRepo, opts ...Option) *Service {
	s := &Service{
		licenses:  licenses,
		devices:   devices,
		trialDays: DefaultTrialDays,
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// sign returns a certificate for the grant, or "" when no signer is configured
func (s *Service) sign(g auth.LicenseGrant) (string, error) {
	if s.signer == nil {
		return "", nil
	}
	token, err := s.signer.Sign(g)
	if err != nil {
		return "", apperr.Wrap(apperr.KindStore, "failed to sign license token", err)
	}
	return token, nil
}

// translate maps repository sentinels to API error kinds
func translate(err error, notFound string) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, repo.ErrDeviceLimit):
		return apperr.New(apperr.KindDeviceLimitExceeded, "device limit reached for this license")
	default:
		return apperr.Store(err)
	}
}

// optional trims s and returns nil for blank values
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
