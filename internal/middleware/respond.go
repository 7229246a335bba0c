package middleware

import (
	"net/http"

	"github.com/go-chi/render"
)

// ErrorEnvelope is the {success:false, error} body of every failed request
type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// RespondWithError sends an ErrorEnvelope with the given status
func RespondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, ErrorEnvelope{Success: false, Error: message})
}
