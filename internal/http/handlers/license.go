package handlers

import (
	"context"
	"net/http"

	"github.com/schoolresults/server/internal/license"
)

// LicenseService is the set of license operations exposed over HTTP
type LicenseService interface {
	Issue(ctx context.Context, in license.IssueInput) (license.IssueResult, error)
	Manage(ctx context.Context, in license.ManageInput) (license.ManageResult, error)
	Lookup(ctx context.Context, licenseKey, deviceID string) (license.LookupResult, error)
	Recover(ctx context.Context, deviceID string) (license.RecoverResult, error)
	Activate(ctx context.Context, in license.DeviceInput) (license.ActivationResult, error)
	Release(ctx context.Context, in license.DeviceInput) error
	StartTrial(ctx context.Context, in license.TrialInput) (license.ActivationResult, error)
}

// LicenseHandler handles license endpoints
type LicenseHandler struct {
	svc LicenseService
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(svc LicenseService) *LicenseHandler {
	return &LicenseHandler{svc: svc}
}

type issueResponse struct {
	Success bool `json:"success"`
	license.IssueResult
}

type manageResponse struct {
	Success bool `json:"success"`
	license.ManageResult
}

type lookupResponse struct {
	Success bool `json:"success"`
	license.LookupResult
}

type recoverResponse struct {
	Success bool `json:"success"`
	license.RecoverResult
}

type activationResponse struct {
	Success bool `json:"success"`
	license.ActivationResult
}

// lookupRequest is the request body for POST /licenses/lookup
type lookupRequest struct {
	LicenseKey string `json:"licenseKey"`
	DeviceID   string `json:"deviceId"`
}

// recoverRequest is the request body for POST /licenses/recover
type recoverRequest struct {
	DeviceID string `json:"deviceId"`
}

// HandleIssue handles POST /licenses (admin)
func (h *LicenseHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Issue(r.Context(), decodeBody[license.IssueInput](r))
	if err != nil {
		respondWithAppError(w, r, "issue", err)
		return
	}
	respondOK(w, r, issueResponse{Success: true, IssueResult: res})
}

// HandleManage handles POST /licenses/manage (admin)
func (h *LicenseHandler) HandleManage(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Manage(r.Context(), decodeBody[license.ManageInput](r))
	if err != nil {
		respondWithAppError(w, r, "manage", err)
		return
	}
	respondOK(w, r, manageResponse{Success: true, ManageResult: res})
}

// HandleLookup handles POST /licenses/lookup
func (h *LicenseHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	req := decodeBody[lookupRequest](r)
	res, err := h.svc.Lookup(r.Context(), req.LicenseKey, req.DeviceID)
	if err != nil {
		respondWithAppError(w, r, "lookup", err)
		return
	}
	respondOK(w, r, lookupResponse{Success: true, LookupResult: res})
}

// HandleRecover handles POST /licenses/recover
func (h *LicenseHandler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	req := decodeBody[recoverRequest](r)
	res, err := h.svc.Recover(r.Context(), req.DeviceID)
	if err != nil {
		respondWithAppError(w, r, "recover", err)
		return
	}
	respondOK(w, r, recoverResponse{Success: true, RecoverResult: res})
}

// HandleActivate handles POST /licenses/activate
func (h *LicenseHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Activate(r.Context(), decodeBody[license.DeviceInput](r))
	if err != nil {
		respondWithAppError(w, r, "activate", err)
		return
	}
	respondOK(w, r, activationResponse{Success: true, ActivationResult: res})
}

// HandleRelease handles POST /licenses/release
func (h *LicenseHandler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Release(r.Context(), decodeBody[license.DeviceInput](r)); err != nil {
		respondWithAppError(w, r, "release", err)
		return
	}
	respondOK(w, r, ackResponse{Success: true})
}

// HandleTrial handles POST /licenses/trial
func (h *LicenseHandler) HandleTrial(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.StartTrial(r.Context(), decodeBody[license.TrialInput](r))
	if err != nil {
		respondWithAppError(w, r, "trial", err)
		return
	}
	respondOK(w, r, activationResponse{Success: true, ActivationResult: res})
}
