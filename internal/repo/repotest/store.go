// Package repotest provides an in-memory implementation of the repo interfaces for tests.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schoolresults/server/internal/model"
	"github.com/schoolresults/server/internal/repo"
)

// Store holds schools, licenses, activations, admins and sessions in memory.
// Every repository call increments Calls, so tests can assert that no store query was issued.
type Store struct {
	mu sync.Mutex

	schools     map[uuid.UUID]model.School
	licenses    map[uuid.UUID]model.License
	activations map[uuid.UUID]model.DeviceActivation
	admins      map[uuid.UUID]model.SystemAdmin
	sessions    map[uuid.UUID]model.AdminSession

	keySeq int
	calls  int

	// Err, when set, is returned by every call.
	Err error
	// FailLicenseInsert, when set, fails CreateWithSchool after the school insert.
	FailLicenseInsert error
	// FailActivationInsert, when set, fails CreateWithSchool when it binds NewLicense.DeviceID.
	FailActivationInsert error
}

// New creates an empty store
func New() *Store {
	return &Store{
		schools:     make(map[uuid.UUID]model.School),
		licenses:    make(map[uuid.UUID]model.License),
		activations: make(map[uuid.UUID]model.DeviceActivation),
		admins:      make(map[uuid.UUID]model.SystemAdmin),
		sessions:    make(map[uuid.UUID]model.AdminSession),
	}
}

// Calls returns the number of repository calls made so far
func (s *Store) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// begin locks the store and counts the call; callers unlock.
func (s *Store) begin() {
	s.mu.Lock()
	s.calls++
}

func (s *Store) Licenses() repo.LicenseRepo { return licenses{s} }
func (s *Store) Devices() repo.DeviceRepo   { return devices{s} }
func (s *Store) Sessions() repo.SessionRepo { return sessions{s} }
func (s *Store) Admins() repo.AdminRepo     { return admins{s} }

// SchoolCount returns the number of stored schools
func (s *Store) SchoolCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.schools)
}

// License returns a stored license by id
func (s *Store) License(id uuid.UUID) (model.License, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.licenses[id]
	return l, ok
}

// PutLicense overwrites a stored license, for arranging test state
func (s *Store) PutLicense(l model.License) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.licenses[l.ID] = l
}

// Activations returns the activations referencing a license
func (s *Store) Activations(licenseID uuid.UUID) []model.DeviceActivation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DeviceActivation
	for _, a := range s.activations {
		if a.LicenseID == licenseID {
			out = append(out, a)
		}
	}
	return out
}

// PutActivation inserts an activation as-is, including for licenses that do not exist
func (s *Store) PutActivation(a model.DeviceActivation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.activations[a.ID] = a
}

// PutSession inserts a session as-is
func (s *Store) PutSession(sess model.AdminSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	s.sessions[sess.ID] = sess
}

// Session returns a stored session by token hash
func (s *Store) Session(tokenHash string) (model.AdminSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.TokenHash == tokenHash {
			return sess, true
		}
	}
	return model.AdminSession{}, false
}

func (s *Store) nextKey() string {
	s.keySeq++
	return fmt.Sprintf("TEST-%04d-%04d-%04d", s.keySeq/100000000%10000, s.keySeq/10000%10000, s.keySeq%10000)
}

type licenses struct{ s *Store }

func (r licenses) CreateWithSchool(_ context.Context, ns model.NewSchool, nl model.NewLicense) (model.School, model.License, error) {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.School{}, model.License{}, s.Err
	}

	if s.FailLicenseInsert != nil {
		return model.School{}, model.License{}, s.FailLicenseInsert
	}

	now := time.Now()
	school := model.School{
		ID:           uuid.New(),
		Name:         ns.Name,
		DirectorName: ns.DirectorName,
		Email:        ns.Email,
		Phone:        ns.Phone,
		Address:      ns.Address,
		CreatedAt:    now,
	}
	license := model.License{
		ID:             uuid.New(),
		LicenseKey:     s.nextKey(),
		SchoolID:       school.ID,
		MaxDevices:     nl.MaxDevices,
		ValidityMonths: nl.ValidityMonths,
		StartDate:      nl.StartDate,
		ExpiryDate:     nl.ExpiryDate,
		IsActive:       true,
		IsTrial:        nl.IsTrial,
		CreatedAt:      now,
	}
	if nl.DeviceID != "" {
		if s.FailActivationInsert != nil {
			return model.School{}, model.License{}, s.FailActivationInsert
		}
		activation := model.DeviceActivation{
			ID:         uuid.New(),
			DeviceID:   nl.DeviceID,
			LicenseID:  license.ID,
			IsActive:   true,
			LastSeenAt: nl.StartDate,
			CreatedAt:  now,
		}
		s.activations[activation.ID] = activation
	}
	s.schools[school.ID] = school
	s.licenses[license.ID] = license
	return school, license, nil
}

func (r licenses) GetByID(_ context.Context, id uuid.UUID) (model.License, error) {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.License{}, s.Err
	}

	l, ok := s.licenses[id]
	if !ok {
		return model.License{}, fmt.Errorf("license %s: %w", id, repo.ErrNotFound)
	}
	return l, nil
}

func (r licenses) GetByKey(_ context.Context, key string) (model.LicenseWithSchool, error) {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.LicenseWithSchool{}, s.Err
	}

	for _, l := range s.licenses {
		if l.LicenseKey == key {
			return model.LicenseWithSchool{License: l, School: s.schools[l.SchoolID]}, nil
		}
	}
	return model.LicenseWithSchool{}, fmt.Errorf("license key: %w", repo.ErrNotFound)
}

func (r licenses) Renew(_ context.Context, id uuid.UUID, expiry time.Time) (model.License, error) {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.License{}, s.Err
	}

	l, ok := s.licenses[id]
	if !ok {
		return model.License{}, fmt.Errorf("license %s: %w", id, repo.ErrNotFound)
	}
	l.ExpiryDate = expiry
	l.IsActive = true
	s.licenses[id] = l
	return l, nil
}

func (r licenses) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	if l, ok := s.licenses[id]; ok {
		l.IsActive = active
		s.licenses[id] = l
	}
	return nil
}

func (r licenses) Delete(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	for aid, a := range s.activations {
		if a.LicenseID == id {
			delete(s.activations, aid)
		}
	}
	delete(s.licenses, id)
	return nil
}

type devices struct{ s *Store }

func (r devices) Bind(_ context.Context, licenseID uuid.UUID, deviceID string, maxDevices int, now time.Time) (model.DeviceActivation, error) {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.DeviceActivation{}, s.Err
	}

	if _, ok := s.licenses[licenseID]; !ok {
		return model.DeviceActivation{}, fmt.Errorf("license %s: %w", licenseID, repo.ErrNotFound)
	}

	var (
		existing *model.DeviceActivation
		others   int
	)
	for _, a := range s.activations {
		if a.LicenseID != licenseID {
			continue
		}
		if a.DeviceID == deviceID {
			a := a
			existing = &a
			continue
		}
		if a.IsActive {
			others++
		}
	}
	if others >= maxDevices {
		return model.DeviceActivation{}, repo.ErrDeviceLimit
	}

	if existing == nil {
		existing = &model.DeviceActivation{
			ID:        uuid.New(),
			DeviceID:  deviceID,
			LicenseID: licenseID,
			CreatedAt: now,
		}
	}
	existing.IsActive = true
	existing.LastSeenAt = now
	s.activations[existing.ID] = *existing
	return *existing, nil
}

func (r devices) IsBound(_ context.Context, licenseID uuid.UUID, deviceID string) (bool, error) {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	for _, a := range s.activations {
		if a.LicenseID == licenseID && a.DeviceID == deviceID && a.IsActive {
			return true, nil
		}
	}
	return false, nil
}

func (r devices) Release(_ context.Context, licenseID uuid.UUID, deviceID string) error {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	for id, a := range s.activations {
		if a.LicenseID == licenseID && a.DeviceID == deviceID {
			a.IsActive = false
			s.activations[id] = a
		}
	}
	return nil
}

func (r devices) FindLatestActive(_ context.Context, deviceID string) (model.RecoveredSession, error) {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.RecoveredSession{}, s.Err
	}

	var candidates []model.DeviceActivation
	for _, a := range s.activations {
		if a.DeviceID == deviceID && a.IsActive {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return model.RecoveredSession{}, fmt.Errorf("device activation: %w", repo.ErrNotFound)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastSeenAt.After(candidates[j].LastSeenAt)
	})

	latest := candidates[0]
	l, ok := s.licenses[latest.LicenseID]
	if !ok {
		return model.RecoveredSession{}, fmt.Errorf("license for activation %s: %w", latest.ID, repo.ErrNotFound)
	}
	school := s.schools[l.SchoolID]
	return model.RecoveredSession{
		LicenseKey: l.LicenseKey,
		LicenseID:  l.ID,
		SchoolID:   l.SchoolID,
		School: model.PublicSchool{
			Name:         school.Name,
			DirectorName: school.DirectorName,
			LogoURL:      school.LogoURL,
		},
		ExpiryDate:    l.ExpiryDate,
		IsTrial:       l.IsTrial,
		LicenseActive: l.IsActive,
	}, nil
}

type sessions struct{ s *Store }

func (r sessions) Create(_ context.Context, adminID uuid.UUID, tokenHash string, expiresAt, now time.Time) (model.AdminSession, error) {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.AdminSession{}, s.Err
	}

	sess := model.AdminSession{
		ID:           uuid.New(),
		TokenHash:    tokenHash,
		AdminID:      adminID,
		ExpiresAt:    expiresAt,
		LastActivity: now,
		CreatedAt:    now,
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (r sessions) FindByTokenHash(_ context.Context, tokenHash string) (model.AdminSession, error) {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.AdminSession{}, s.Err
	}

	for _, sess := range s.sessions {
		if sess.TokenHash == tokenHash {
			return sess, nil
		}
	}
	return model.AdminSession{}, fmt.Errorf("admin session: %w", repo.ErrNotFound)
}

func (r sessions) Touch(_ context.Context, id uuid.UUID, now time.Time) error {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	if sess, ok := s.sessions[id]; ok {
		sess.LastActivity = now
		s.sessions[id] = sess
	}
	return nil
}

func (r sessions) Delete(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	delete(s.sessions, id)
	return nil
}

func (r sessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}

	var n int64
	for id, sess := range s.sessions {
		if sess.ExpiresAt.Before(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

type admins struct{ s *Store }

func (r admins) Create(_ context.Context, username, passwordHash string) (model.SystemAdmin, error) {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.SystemAdmin{}, s.Err
	}

	for _, a := range s.admins {
		if a.Username == username {
			return model.SystemAdmin{}, fmt.Errorf("admin %q: %w", username, repo.ErrAdminExists)
		}
	}
	admin := model.SystemAdmin{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	s.admins[admin.ID] = admin
	return admin, nil
}

func (r admins) GetByUsername(_ context.Context, username string) (model.SystemAdmin, error) {
	s := r.s
	s.begin()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.SystemAdmin{}, s.Err
	}

	for _, a := range s.admins {
		if a.Username == username {
			return a, nil
		}
	}
	return model.SystemAdmin{}, fmt.Errorf("admin %q: %w", username, repo.ErrNotFound)
}
