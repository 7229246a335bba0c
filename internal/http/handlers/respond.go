package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/render"
	"github.com/schoolresults/server/internal/apperr"
	"github.com/schoolresults/server/internal/middleware"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies; anything larger is treated as malformed
const maxBodyBytes = 1 << 20

// ackResponse is the success envelope without payload
type ackResponse struct {
	Success bool `json:"success"`
}

// decodeBody reads a JSON body into a T. Empty, malformed or non-JSON bodies yield the zero T,
// so missing fields surface as validation errors instead of decode errors.
func decodeBody[T any](r *http.Request) T {
	var zero T
	if r.Body == nil {
		return zero
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(raw) == 0 {
		return zero
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero
	}
	return v
}

// respondOK sends a 200 with the given envelope
func respondOK(w http.ResponseWriter, r *http.Request, body any) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, body)
}

// respondWithAppError maps err to its status code and sends the error envelope
func respondWithAppError(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := apperr.KindOf(err)
	status := apperr.StatusCode(kind)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("operation", op),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
	middleware.RespondWithError(w, r, status, apperr.Message(err))
}
