package licenseclient

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/schoolresults/server/internal/auth"
	httphandler "github.com/schoolresults/server/internal/http"
	"github.com/schoolresults/server/internal/http/handlers"
	"github.com/schoolresults/server/internal/license"
	"github.com/schoolresults/server/internal/repo/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serverNow = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type testEnv struct {
	srv      *httptest.Server
	svc      *license.Service
	store    *repotest.Store
	verifier *auth.LicenseTokenVerifier
	client   *clock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	serverClock := &clock{t: serverNow}
	signer := auth.NewLicenseTokenSigner(priv, 7*24*time.Hour, auth.WithClock(serverClock.Now))
	store := repotest.New()
	svc := license.NewService(store.Licenses(), store.Devices(),
		license.WithClock(serverClock.Now),
		license.WithSigner(signer),
	)

	router := httphandler.NewRouter(httphandler.Deps{
		Licenses: handlers.NewLicenseHandler(svc),
		Admin:    handlers.NewAdminHandler(auth.NewAdminService(store.Admins(), store.Sessions(), time.Hour)),
		Health:   handlers.NewHealthHandler(nil),
		Sessions: auth.NewSessionVerifier(store.Sessions()),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{
		srv:      srv,
		svc:      svc,
		store:    store,
		verifier: auth.NewLicenseTokenVerifier(signer.PublicKey(), auth.WithClock(serverClock.Now)),
		client:   &clock{t: serverNow},
	}
}

func (e *testEnv) newContext(t *testing.T, store Store, opts ...Option) *LicenseContext {
	t.Helper()
	opts = append([]Option{WithClock(e.client.Now)}, opts...)
	lc, err := New(NewClient(e.srv.URL, e.srv.Client()), store, opts...)
	require.NoError(t, err)
	return lc
}

func (e *testEnv) issue(t *testing.T, months int) license.IssueResult {
	t.Helper()
	res, err := e.svc.Issue(context.Background(), license.IssueInput{SchoolName: "Riverside", ValidityMonths: &months})
	require.NoError(t, err)
	return res
}

func TestRemainingDays(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		expiry time.Time
		want   int
	}{
		{now.Add(30 * 24 * time.Hour), 30},
		{now.Add(29*24*time.Hour + time.Minute), 30},
		{now.Add(time.Second), 1},
		{now, 0},
		{now.Add(-time.Hour), 0},
		{now.Add(-36 * time.Hour), -1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RemainingDays(tc.expiry, now), tc.expiry.String())
	}
}

func TestLicenseContext_firstRunIsUnactivated(t *testing.T) {
	e := newTestEnv(t)
	store := &MemoryStore{}
	lc := e.newContext(t, store)

	assert.Equal(t, StatusLoading, lc.Snapshot().Status)
	p, _ := store.Load()
	assert.NotEmpty(t, p.DeviceID)
	assert.Equal(t, p.DeviceID, lc.DeviceID())

	res := lc.CheckLicense(context.Background())
	assert.True(t, res.Success, res.Error)
	snap := lc.Snapshot()
	assert.Equal(t, StatusUnactivated, snap.Status)
	assert.False(t, snap.ShowExpiryWarning)
	_, ok := snap.SchoolID()
	assert.False(t, ok)
}

func TestLicenseContext_activateThenExpire(t *testing.T) {
	e := newTestEnv(t)
	issued := e.issue(t, 1)
	store := &MemoryStore{}
	lc := e.newContext(t, store)
	ctx := context.Background()

	res := lc.ActivateLicense(ctx, " "+issued.LicenseKey+" ")
	require.True(t, res.Success, res.Error)

	snap := lc.Snapshot()
	assert.Equal(t, StatusActivated, snap.Status)
	assert.InDelta(t, 30, snap.RemainingDays, 1)
	assert.False(t, snap.ShowExpiryWarning)
	schoolID, ok := snap.SchoolID()
	require.True(t, ok)
	assert.Equal(t, issued.School.ID, schoolID)
	assert.Equal(t, "Riverside", snap.License.School.Name)

	p, _ := store.Load()
	assert.Equal(t, issued.LicenseKey, p.LicenseKey)
	assert.NotEmpty(t, p.Certificate)
	assert.Len(t, e.store.Activations(issued.License.ID), 1)

	e.client.Set(issued.License.ExpiryDate.Add(-3 * 24 * time.Hour))
	snap = lc.Snapshot()
	assert.Equal(t, StatusActivated, snap.Status)
	assert.Equal(t, 3, snap.RemainingDays)
	assert.True(t, snap.ShowExpiryWarning)

	e.client.Set(issued.License.ExpiryDate.Add(time.Hour))
	snap = lc.Snapshot()
	assert.Equal(t, StatusExpired, snap.Status)
	assert.True(t, snap.ShowExpiryWarning)
}

func TestLicenseContext_activateFailureKeepsState(t *testing.T) {
	e := newTestEnv(t)
	lc := e.newContext(t, &MemoryStore{})
	ctx := context.Background()
	require.True(t, lc.CheckLicense(ctx).Success)

	res := lc.ActivateLicense(ctx, "ZZZZ-ZZZZ-ZZZZ-ZZZZ")
	assert.False(t, res.Success)
	assert.Equal(t, "invalid license key", res.Error)
	assert.Equal(t, StatusUnactivated, lc.Snapshot().Status)

	res = lc.ActivateLicense(ctx, "   ")
	assert.False(t, res.Success)
	assert.Equal(t, "licenseKey is required", res.Error)

	issued := e.issue(t, 12)
	require.NoError(t, e.svc.Deactivate(ctx, issued.License.ID))
	res = lc.ActivateLicense(ctx, issued.LicenseKey)
	assert.False(t, res.Success)
	assert.Equal(t, "license is deactivated", res.Error)
	assert.Equal(t, StatusUnactivated, lc.Snapshot().Status)
}

func TestLicenseContext_recoversDeviceSession(t *testing.T) {
	e := newTestEnv(t)
	issued := e.issue(t, 12)
	ctx := context.Background()

	first := e.newContext(t, &MemoryStore{})
	require.True(t, first.ActivateLicense(ctx, issued.LicenseKey).Success)

	// Same device, local license key lost.
	store := &MemoryStore{}
	require.NoError(t, store.Save(Persisted{DeviceID: first.DeviceID()}))
	second := e.newContext(t, store)

	res := second.CheckLicense(ctx)
	require.True(t, res.Success, res.Error)
	snap := second.Snapshot()
	assert.Equal(t, StatusActivated, snap.Status)
	assert.Equal(t, issued.LicenseKey, snap.License.LicenseKey)

	p, _ := store.Load()
	assert.Equal(t, issued.LicenseKey, p.LicenseKey)
}

func TestLicenseContext_deactivatedLicenseClearsKey(t *testing.T) {
	e := newTestEnv(t)
	issued := e.issue(t, 12)
	ctx := context.Background()
	store := &MemoryStore{}
	lc := e.newContext(t, store)
	require.True(t, lc.ActivateLicense(ctx, issued.LicenseKey).Success)

	require.NoError(t, e.svc.Deactivate(ctx, issued.License.ID))
	require.True(t, lc.CheckLicense(ctx).Success)

	assert.Equal(t, StatusUnactivated, lc.Snapshot().Status)
	p, _ := store.Load()
	assert.Empty(t, p.LicenseKey)
	assert.Empty(t, p.Certificate)
	assert.NotEmpty(t, p.DeviceID)
}

func TestLicenseContext_deletedLicenseFallsBackToRecovery(t *testing.T) {
	e := newTestEnv(t)
	issued := e.issue(t, 12)
	ctx := context.Background()
	store := &MemoryStore{}
	lc := e.newContext(t, store)
	require.True(t, lc.ActivateLicense(ctx, issued.LicenseKey).Success)

	require.NoError(t, e.svc.Delete(ctx, issued.License.ID))
	require.True(t, lc.CheckLicense(ctx).Success)

	assert.Equal(t, StatusUnactivated, lc.Snapshot().Status)
	p, _ := store.Load()
	assert.Empty(t, p.LicenseKey)
}

func TestLicenseContext_logout(t *testing.T) {
	e := newTestEnv(t)
	issued := e.issue(t, 12)
	ctx := context.Background()
	store := &MemoryStore{}
	lc := e.newContext(t, store)
	require.True(t, lc.ActivateLicense(ctx, issued.LicenseKey).Success)
	deviceID := lc.DeviceID()

	require.True(t, lc.Logout(ctx).Success)
	assert.Equal(t, StatusUnactivated, lc.Snapshot().Status)
	p, _ := store.Load()
	assert.Equal(t, Persisted{DeviceID: deviceID}, p)

	// The device was released, so recovery does not silently log back in.
	require.True(t, lc.CheckLicense(ctx).Success)
	assert.Equal(t, StatusUnactivated, lc.Snapshot().Status)
}

func TestLicenseContext_startTrial(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	store := &MemoryStore{}
	lc := e.newContext(t, store)

	assert.False(t, lc.StartTrialLicense(ctx, " ").Success)

	res := lc.StartTrialLicense(ctx, "Hilltop Primary")
	require.True(t, res.Success, res.Error)
	snap := lc.Snapshot()
	assert.Equal(t, StatusTrial, snap.Status)
	assert.Equal(t, license.DefaultTrialDays, snap.RemainingDays)
	assert.Equal(t, "Hilltop Primary", snap.License.School.Name)

	p, _ := store.Load()
	assert.Equal(t, snap.License.LicenseKey, p.LicenseKey)
}

func TestLicenseContext_offlineFallback(t *testing.T) {
	e := newTestEnv(t)
	issued := e.issue(t, 12)
	ctx := context.Background()
	store := &MemoryStore{}

	lc := e.newContext(t, store, WithVerifier(e.verifier))
	require.True(t, lc.ActivateLicense(ctx, issued.LicenseKey).Success)
	online := e.newContext(t, store)
	require.True(t, online.CheckLicense(ctx).Success)
	e.srv.Close()

	offline := e.newContext(t, store, WithVerifier(e.verifier))
	res := offline.CheckLicense(ctx)
	require.True(t, res.Success, res.Error)
	snap := offline.Snapshot()
	assert.True(t, snap.Offline)
	assert.Equal(t, StatusActivated, snap.Status)
	assert.Equal(t, issued.License.ID, snap.License.LicenseID)

	noVerifier := e.newContext(t, store)
	res = noVerifier.CheckLicense(ctx)
	assert.False(t, res.Success)
	assert.Equal(t, ErrUnreachable.Error(), res.Error)
	assert.Equal(t, StatusUnactivated, noVerifier.Snapshot().Status)

	persisted, err := store.Load()
	require.NoError(t, err)
	claims, err := e.verifier.Verify(persisted.Certificate)
	require.NoError(t, err)
	assert.Equal(t, persisted.DeviceID, claims.DeviceID)

	// A failed check never drops a license that is already held.
	res = online.CheckLicense(ctx)
	assert.False(t, res.Success)
	assert.Equal(t, StatusActivated, online.Snapshot().Status)
	assert.False(t, online.Snapshot().Offline)
}

func TestLicenseContext_offlineRejectsOtherDevicesCertificate(t *testing.T) {
	e := newTestEnv(t)
	issued := e.issue(t, 12)
	ctx := context.Background()
	store := &MemoryStore{}

	lc := e.newContext(t, store)
	require.True(t, lc.ActivateLicense(ctx, issued.LicenseKey).Success)
	e.srv.Close()

	copied, err := store.Load()
	require.NoError(t, err)
	copied.DeviceID = "another-device"
	other := &MemoryStore{}
	require.NoError(t, other.Save(copied))

	clone := e.newContext(t, other, WithVerifier(e.verifier))
	res := clone.CheckLicense(ctx)
	assert.False(t, res.Success)
	assert.False(t, clone.Snapshot().Offline)
	assert.Equal(t, StatusUnactivated, clone.Snapshot().Status)
}

func TestLicenseContext_rejectedLookupSkipsCertificate(t *testing.T) {
	e := newTestEnv(t)
	issued := e.issue(t, 12)
	ctx := context.Background()
	store := &MemoryStore{}

	lc := e.newContext(t, store)
	require.True(t, lc.ActivateLicense(ctx, issued.LicenseKey).Success)

	busy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"success":false,"error":"rate limit exceeded"}`))
	}))
	t.Cleanup(busy.Close)

	rejected, err := New(NewClient(busy.URL, busy.Client()), store, WithClock(e.client.Now), WithVerifier(e.verifier))
	require.NoError(t, err)
	res := rejected.CheckLicense(ctx)
	assert.False(t, res.Success)
	assert.Equal(t, "rate limit exceeded", res.Error)
	assert.False(t, rejected.Snapshot().Offline)
	assert.Equal(t, StatusUnactivated, rejected.Snapshot().Status)

	p, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, issued.LicenseKey, p.LicenseKey)
}

func TestLicenseContext_onChange(t *testing.T) {
	e := newTestEnv(t)
	issued := e.issue(t, 12)

	var seen []Status
	lc := e.newContext(t, &MemoryStore{}, WithOnChange(func(s Snapshot) { seen = append(seen, s.Status) }))
	ctx := context.Background()

	lc.CheckLicense(ctx)
	lc.ActivateLicense(ctx, issued.LicenseKey)
	lc.Logout(ctx)
	assert.Equal(t, []Status{StatusUnactivated, StatusActivated, StatusUnactivated}, seen)
}
