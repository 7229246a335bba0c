package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/schoolresults/server/internal/http/handlers"
	"github.com/schoolresults/server/internal/metrics"
	"github.com/schoolresults/server/internal/middleware"
	"go.uber.org/zap"
)

// Deps are the collaborators the router wires together
type Deps struct {
	Licenses *handlers.LicenseHandler
	Admin    *handlers.AdminHandler
	Health   *handlers.HealthHandler
	Sessions middleware.SessionVerifier

	// Limiter throttles the unauthenticated write routes; nil disables rate limiting.
	Limiter        *middleware.RateLimiter
	AllowedOrigins []string

	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d Deps) *chi.Mux {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log, d.Metrics))
	r.Use(middleware.Recoverer(log))
	r.Use(middleware.CORS(d.AllowedOrigins))

	r.Get("/health", d.Health.ServeHTTP)
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	limited := func(route string) func(http.Handler) http.Handler {
		if d.Limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.RateLimitMiddleware(d.Limiter, route, middleware.GetIPKey, d.Metrics)
	}

	r.Route("/admin", func(r chi.Router) {
		r.With(limited("/admin/login")).Post("/login", d.Admin.HandleLogin)
		r.With(middleware.AdminSession(d.Sessions)).Post("/logout", d.Admin.HandleLogout)
	})

	r.Route("/licenses", func(r chi.Router) {
		r.Post("/lookup", d.Licenses.HandleLookup)
		r.Post("/recover", d.Licenses.HandleRecover)
		r.With(limited("/licenses/activate")).Post("/activate", d.Licenses.HandleActivate)
		r.With(limited("/licenses/release")).Post("/release", d.Licenses.HandleRelease)
		r.With(limited("/licenses/trial")).Post("/trial", d.Licenses.HandleTrial)

		// Protected routes (require a valid admin session)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminSession(d.Sessions))
			r.Post("/", d.Licenses.HandleIssue)
			r.Post("/manage", d.Licenses.HandleManage)
		})
	})

	return r
}
