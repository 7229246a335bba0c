package licenseclient

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schoolresults/server/internal/auth"
	"github.com/schoolresults/server/internal/logger"
	"github.com/schoolresults/server/internal/model"
	"go.uber.org/zap"
)

// Status is the activation state of the device
type Status string

const (
	StatusLoading     Status = "loading"
	StatusUnactivated Status = "unactivated"
	StatusTrial       Status = "trial"
	StatusActivated   Status = "activated"
	StatusExpired     Status = "expired"
)

// ExpiryWarningDays is the remaining-days threshold at which the expiry warning shows
const ExpiryWarningDays = 7

// License is the license the device currently holds
type License struct {
	LicenseKey string
	LicenseID  uuid.UUID
	SchoolID   uuid.UUID
	School     model.PublicSchool
	ExpiryDate time.Time
	IsTrial    bool
	IsActive   bool
	MaxDevices int
}

// Snapshot is a point-in-time view of the license state. RemainingDays and ShowExpiryWarning
// are derived from the clock when the snapshot is taken.
type Snapshot struct {
	Status            Status
	DeviceID          string
	License           *License
	RemainingDays     int
	ShowExpiryWarning bool
	// Offline is set when the state was derived from the cached certificate.
	Offline bool
}

// SchoolID returns the tenant to scope school data by. It is only set while a license is held.
func (s Snapshot) SchoolID() (uuid.UUID, bool) {
	if s.License == nil {
		return uuid.Nil, false
	}
	return s.License.SchoolID, true
}

// Result is the outcome of a user-triggered license action
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// CertificateVerifier checks a cached license certificate
type CertificateVerifier interface {
	Verify(token string) (*auth.LicenseClaims, error)
}

// RemainingDays returns the whole days left until expiry, rounded up
func RemainingDays(expiry, now time.Time) int {
	return int(math.Ceil(expiry.Sub(now).Hours() / 24))
}

// LicenseContext holds the device's license state and drives transitions between
// Loading, Unactivated, Trial, Activated and Expired. Server calls are not serialized;
// a check racing an activation may briefly leave a stale snapshot.
type LicenseContext struct {
	api      LicenseAPI
	store    Store
	verifier CertificateVerifier
	now      func() time.Time
	log      *zap.Logger
	onChange func(Snapshot)

	mu        sync.Mutex
	checked   bool
	persisted Persisted
	license   *License
	offline   bool
}

// Option configures a LicenseContext
type Option func(*LicenseContext)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *LicenseContext) { c.now = now }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(c *LicenseContext) { c.log = log }
}

// WithVerifier enables the offline fallback to the cached certificate
func WithVerifier(v CertificateVerifier) Option {
	return func(c *LicenseContext) { c.verifier = v }
}

// WithOnChange registers a callback invoked with the new snapshot after every state change
func WithOnChange(fn func(Snapshot)) Option {
	return func(c *LicenseContext) { c.onChange = fn }
}

// New loads the persisted state and assigns this device an id on first use
func New(api LicenseAPI, store Store, opts ...Option) (*LicenseContext, error) {
	c := &LicenseContext{
		api:   api,
		store: store,
		now:   time.Now,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	p, err := store.Load()
	if err != nil {
		return nil, err
	}
	if p.DeviceID == "" {
		p.DeviceID = uuid.NewString()
		if err := store.Save(p); err != nil {
			return nil, err
		}
	}
	c.persisted = p
	return c, nil
}

// DeviceID returns the persisted device identifier
func (c *LicenseContext) DeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persisted.DeviceID
}

// Snapshot returns the current state
func (c *LicenseContext) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *LicenseContext) snapshotLocked() Snapshot {
	snap := Snapshot{DeviceID: c.persisted.DeviceID, Offline: c.offline}
	if !c.checked {
		snap.Status = StatusLoading
		return snap
	}
	if c.license == nil || !c.license.IsActive {
		snap.Status = StatusUnactivated
		return snap
	}

	l := *c.license
	snap.License = &l
	snap.RemainingDays = RemainingDays(l.ExpiryDate, c.now())
	snap.ShowExpiryWarning = snap.RemainingDays <= ExpiryWarningDays
	switch {
	case snap.RemainingDays <= 0:
		snap.Status = StatusExpired
	case l.IsTrial:
		snap.Status = StatusTrial
	default:
		snap.Status = StatusActivated
	}
	return snap
}

// commit persists p and then installs the license. Nothing changes when the save fails.
func (c *LicenseContext) commit(p Persisted, l *License, offline bool) error {
	c.mu.Lock()
	if p != c.persisted {
		if err := c.store.Save(p); err != nil {
			c.mu.Unlock()
			return err
		}
		c.persisted = p
	}
	c.checked = true
	c.license = l
	c.offline = offline
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(snap)
	}
	return nil
}

func (c *LicenseContext) persistedCopy() Persisted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persisted
}

// CheckLicense resolves the current state: the stored key is looked up first, and without
// one the device's last session is recovered. When the server cannot be reached the cached
// certificate, if valid, stands in for it.
func (c *LicenseContext) CheckLicense(ctx context.Context) Result {
	p := c.persistedCopy()

	if p.LicenseKey != "" {
		res, err := c.api.Lookup(ctx, p.LicenseKey, p.DeviceID)
		switch {
		case err == nil:
			l := fromView(p.LicenseKey, res.Data)
			if !l.IsActive {
				c.log.Info("stored license is deactivated", zap.String("license_key", logger.MaskKey(p.LicenseKey)))
				return c.result(c.commit(Persisted{DeviceID: p.DeviceID}, nil, false))
			}
			p.Certificate = orDefault(res.Token, p.Certificate)
			return c.result(c.commit(p, l, false))
		case IsNotFound(err):
			c.log.Info("stored license no longer exists", zap.String("license_key", logger.MaskKey(p.LicenseKey)))
			p = Persisted{DeviceID: p.DeviceID}
			if err := c.commit(p, nil, false); err != nil {
				return failure(err)
			}
		case IsRejected(err):
			c.markChecked()
			return failure(err)
		default:
			return c.offlineFallback(p, err)
		}
	}

	rec, err := c.api.Recover(ctx, p.DeviceID)
	switch {
	case err == nil:
		l := fromRecovery(rec.Data)
		if !l.IsActive {
			return c.result(c.commit(p, nil, false))
		}
		p.LicenseKey = l.LicenseKey
		p.Certificate = rec.Token
		return c.result(c.commit(p, l, false))
	case IsNotFound(err):
		return c.result(c.commit(p, nil, false))
	default:
		c.markChecked()
		return failure(err)
	}
}

func (c *LicenseContext) offlineFallback(p Persisted, cause error) Result {
	if c.verifier != nil && p.Certificate != "" {
		claims, err := c.verifier.Verify(p.Certificate)
		if err == nil && claims.DeviceID == p.DeviceID {
			c.log.Warn("license server unavailable, using cached certificate", zap.Error(cause))
			g := claims.Grant()
			return c.result(c.commit(p, &License{
				LicenseKey: p.LicenseKey,
				LicenseID:  g.LicenseID,
				SchoolID:   g.SchoolID,
				ExpiryDate: g.ExpiryDate,
				IsTrial:    g.IsTrial,
				IsActive:   g.IsActive,
			}, true))
		}
		if err != nil {
			c.log.Warn("cached license certificate rejected", zap.Error(err))
		}
	}
	c.markChecked()
	return failure(cause)
}

// markChecked leaves Loading without touching a license that is already held
func (c *LicenseContext) markChecked() {
	c.mu.Lock()
	if c.checked {
		c.mu.Unlock()
		return
	}
	c.checked = true
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(snap)
	}
}

// ActivateLicense validates the key, binds this device to it and stores the key.
// On failure the state is left as it was.
func (c *LicenseContext) ActivateLicense(ctx context.Context, licenseKey string) Result {
	licenseKey = strings.TrimSpace(licenseKey)
	if licenseKey == "" {
		return Result{Error: "licenseKey is required"}
	}
	p := c.persistedCopy()

	if _, err := c.api.Lookup(ctx, licenseKey, p.DeviceID); err != nil {
		return failure(err)
	}
	res, err := c.api.Activate(ctx, licenseKey, p.DeviceID)
	if err != nil {
		return failure(err)
	}

	p.LicenseKey = licenseKey
	p.Certificate = res.Token
	if err := c.commit(p, fromView(licenseKey, res.Data), false); err != nil {
		return failure(err)
	}
	c.log.Info("license activated", zap.String("license_key", logger.MaskKey(licenseKey)))
	return Result{Success: true}
}

// StartTrialLicense provisions a trial license for the school and activates it on this device
func (c *LicenseContext) StartTrialLicense(ctx context.Context, schoolName string) Result {
	schoolName = strings.TrimSpace(schoolName)
	if schoolName == "" {
		return Result{Error: "schoolName is required"}
	}
	p := c.persistedCopy()

	res, err := c.api.StartTrial(ctx, schoolName, p.DeviceID)
	if err != nil {
		return failure(err)
	}

	p.LicenseKey = res.LicenseKey
	p.Certificate = res.Token
	if err := c.commit(p, fromView(res.LicenseKey, res.Data), false); err != nil {
		return failure(err)
	}
	c.log.Info("trial license started", zap.String("license_key", logger.MaskKey(res.LicenseKey)))
	return Result{Success: true}
}

// Logout releases this device on the server and forgets the license locally. The device id
// is kept so the device stays recognisable.
func (c *LicenseContext) Logout(ctx context.Context) Result {
	p := c.persistedCopy()
	if p.LicenseKey != "" {
		if err := c.api.Release(ctx, p.LicenseKey, p.DeviceID); err != nil {
			c.log.Warn("failed to release device on logout", zap.Error(err))
		}
	}
	return c.result(c.commit(Persisted{DeviceID: p.DeviceID}, nil, false))
}

func (c *LicenseContext) result(err error) Result {
	if err != nil {
		return failure(err)
	}
	return Result{Success: true}
}

func failure(err error) Result {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return Result{Error: apiErr.Message}
	case errors.Is(err, ErrUnreachable):
		return Result{Error: ErrUnreachable.Error()}
	default:
		return Result{Error: err.Error()}
	}
}

func fromView(licenseKey string, v model.LicenseView) *License {
	return &License{
		LicenseKey: licenseKey,
		LicenseID:  v.ID,
		SchoolID:   v.SchoolID,
		School:     v.School,
		ExpiryDate: v.ExpiryDate,
		IsTrial:    v.IsTrial,
		IsActive:   v.IsActive,
		MaxDevices: v.MaxDevices,
	}
}

func fromRecovery(r model.RecoveredSession) *License {
	return &License{
		LicenseKey: r.LicenseKey,
		LicenseID:  r.LicenseID,
		SchoolID:   r.SchoolID,
		School:     r.School,
		ExpiryDate: r.ExpiryDate,
		IsTrial:    r.IsTrial,
		IsActive:   r.LicenseActive,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
