package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/program-registrations/internal/auth"
	"github.com/Shivanand-hulikatti/program-registrations/internal/config"
	"github.com/Shivanand-hulikatti/program-registrations/internal/service"
)

// Deps is everything the router needs.
type Deps struct {
	Service *service.RegistrationService
	JWT     *auth.JWTer
	Logger  *zap.Logger
	Limits  config.Limits
	// RequestTimeout bounds every request's context; zero disables it.
	RequestTimeout time.Duration
	CORSOrigin     string
	// TrustProxy lets X-Forwarded-For/X-Real-IP replace the remote address.
	TrustProxy bool
	// Health checks reported by /health. The store is always included.
	Health map[string]PingFunc
}

// NewRouter builds the full HTTP surface.
func NewRouter(d Deps) http.Handler {
	h := NewRegistrationHandler(d.Service)
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	origin := d.CORSOrigin
	if origin == "" {
		origin = "*"
	}

	checks := map[string]PingFunc{"store": d.Service.Ping}
	for name, fn := range d.Health {
		checks[name] = fn
	}

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	if d.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(Logger(log))
	r.Use(CORS(origin))
	r.Use(Metrics)

	r.Get("/health", HealthCheck(checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(ConcurrencyLimit(d.Limits.MaxConcurrent, d.Limits.ConcurrencyWait))
		if d.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(d.RequestTimeout))
		}

		r.Route("/resources", func(r chi.Router) {
			r.Get("/", h.ListResources)
			r.Get("/{id}", h.GetResource)
			r.With(RateLimitPerIP(d.Limits.SubmitRPS, d.Limits.SubmitBurst)).
				Post("/{id}/registrations", h.Submit)
		})

		r.Route("/registrations/{id}", func(r chi.Router) {
			r.Post("/cancel", h.SelfCancel)
			r.Post("/feedback", h.Feedback)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuth(d.JWT))

			r.Get("/overview", h.Overview)
			r.Route("/resources", func(r chi.Router) {
				r.Get("/", h.AdminListResources)
				r.Post("/", h.CreateResource)
				r.Get("/{id}", h.AdminGetResource)
				r.Patch("/{id}", h.UpdateResource)
				r.Delete("/{id}", h.DeleteResource)
				r.Post("/{id}/transitions", h.TransitionResource)
				r.Get("/{id}/registrations", h.ListRegistrations)
				r.Get("/{id}/summary", h.Summary)
			})
			r.Route("/registrations/{id}", func(r chi.Router) {
				r.Get("/", h.GetRegistration)
				r.Delete("/", h.DeleteRegistration)
				r.Post("/confirm", h.Confirm)
				r.Post("/cancel", h.AdminCancel)
				r.Post("/attendance", h.Attendance)
				r.Post("/certificate", h.Certificate)
			})
		})
	})

	return r
}
