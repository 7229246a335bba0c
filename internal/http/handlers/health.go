package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/schoolresults/server/internal/middleware"
)

// Pinger is satisfied by *sql.DB and *sqlx.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports liveness and, when a database is attached, its reachability
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a new health handler; db may be nil
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

type healthResponse struct {
	Success  bool   `json:"success"`
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// ServeHTTP handles GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		respondOK(w, r, healthResponse{Success: true, Status: "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		middleware.RespondWithError(w, r, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	respondOK(w, r, healthResponse{Success: true, Status: "ok", Database: "up"})
}
