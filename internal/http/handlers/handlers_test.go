package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/schoolresults/server/internal/apperr"
	"github.com/schoolresults/server/internal/license"
	"github.com/schoolresults/server/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLicenses struct {
	LicenseService
	lookupKey    string
	lookupDevice string
	err          error
}

func (s *stubLicenses) Lookup(_ context.Context, key, deviceID string) (license.LookupResult, error) {
	s.lookupKey = key
	s.lookupDevice = deviceID
	if s.err != nil {
		return license.LookupResult{}, s.err
	}
	return license.LookupResult{Token: "signed"}, nil
}

func (s *stubLicenses) Release(_ context.Context, _ license.DeviceInput) error {
	return s.err
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestDecodeBody_tolerant(t *testing.T) {
	type body struct {
		LicenseKey string `json:"licenseKey"`
	}
	for _, raw := range []string{"", "not json", `{"licenseKey": 12}`, `[1,2]`} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(raw))
		assert.Equal(t, body{}, decodeBody[body](req), "body %q", raw)
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"licenseKey":"ABCD"}`))
	assert.Equal(t, "ABCD", decodeBody[body](req).LicenseKey)
}

func TestHandleLookup_success(t *testing.T) {
	svc := &stubLicenses{}
	rec := post(NewLicenseHandler(svc).HandleLookup, `{"licenseKey":" K ","deviceId":"dev-1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, " K ", svc.lookupKey)
	assert.Equal(t, "dev-1", svc.lookupDevice)

	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, true, got["success"])
	assert.Equal(t, "signed", got["token"])
	assert.Contains(t, got, "data")
}

func TestHandlers_errorStatusCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{apperr.Validation("licenseKey is required"), http.StatusBadRequest},
		{apperr.New(apperr.KindUnknownAction, "unknown action: x"), http.StatusBadRequest},
		{apperr.NotFound("invalid license key"), http.StatusNotFound},
		{apperr.New(apperr.KindLicenseInactive, "license is deactivated"), http.StatusForbidden},
		{apperr.New(apperr.KindDeviceLimitExceeded, "device limit"), http.StatusForbidden},
		{apperr.New(apperr.KindSessionExpired, "session expired"), http.StatusUnauthorized},
		{apperr.Store(errors.New("pq: relation does not exist")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := post(NewLicenseHandler(&stubLicenses{err: tc.err}).HandleLookup, "{}")
		assert.Equal(t, tc.status, rec.Code, apperr.Message(tc.err))

		var env middleware.ErrorEnvelope
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
		assert.False(t, env.Success)
		assert.Equal(t, apperr.Message(tc.err), env.Error)
	}
}

func TestHandleRelease_ack(t *testing.T) {
	rec := post(NewLicenseHandler(&stubLicenses{}).HandleRelease, `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
}

type failingPinger struct{ err error }

func (p failingPinger) PingContext(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(failingPinger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"up"`)

	rec = httptest.NewRecorder()
	NewHealthHandler(failingPinger{err: errors.New("down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
