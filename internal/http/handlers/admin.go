package handlers

import (
	"context"
	"net/http"

	"github.com/schoolresults/server/internal/auth"
	"github.com/schoolresults/server/internal/middleware"
)

// AdminService is the admin session API
type AdminService interface {
	Login(ctx context.Context, in auth.Credentials) (auth.AdminSessionToken, error)
	Logout(ctx context.Context, token string) error
}

// AdminHandler handles system admin login and logout
type AdminHandler struct {
	svc AdminService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(svc AdminService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

type loginResponse struct {
	Success bool `json:"success"`
	auth.AdminSessionToken
}

// HandleLogin handles POST /admin/login
func (h *AdminHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	tok, err := h.svc.Login(r.Context(), decodeBody[auth.Credentials](r))
	if err != nil {
		respondWithAppError(w, r, "admin_login", err)
		return
	}
	respondOK(w, r, loginResponse{Success: true, AdminSessionToken: tok})
}

// HandleLogout handles POST /admin/logout (protected)
func (h *AdminHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), middleware.SessionToken(r)); err != nil {
		respondWithAppError(w, r, "admin_logout", err)
		return
	}
	respondOK(w, r, ackResponse{Success: true})
}
