package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ramurama/populardoctor-webapi/internal/http/handlers"
	httpmiddleware "github.com/ramurama/populardoctor-webapi/internal/http/middleware"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Customer       *handlers.CustomerHandler
	Staff          *handlers.StaffHandler
	Admin          *handlers.AdminHandler
	Live           *handlers.LiveHandler
	AuthSecret     string
	RateLimiter    *httpmiddleware.RateLimiter
	MetricsHandler http.Handler
	CORSOrigins    []string

	// Ping reports dependency health for /health. Optional.
	Ping func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(logger))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSOrigins))
	}

	r.Get("/health", health(cfg.Ping))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.Live != nil {
		r.Get("/ws/token-tables/{tableID}", cfg.Live.TokenTable)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(httpmiddleware.Authenticate(cfg.AuthSecret))
		if cfg.RateLimiter != nil {
			v1.Use(cfg.RateLimiter.Middleware)
		}

		if c := cfg.Customer; c != nil {
			v1.Group(func(r chi.Router) {
				r.Use(httpmiddleware.RequireRole(httpmiddleware.RoleCustomer))
				r.Get("/token-tables/{doctorID}/{scheduleID}/{date}", c.TokenTable)
				r.Post("/tokens/block", c.Block)
				r.Post("/bookings", c.Book)
				r.Post("/bookings/{bookingID}/cancel", c.Cancel)
				r.Post("/bookings/{bookingID}/feedback", c.Feedback)
				r.Get("/bookings/history", c.History)
			})
		}

		if s := cfg.Staff; s != nil {
			v1.Group(func(r chi.Router) {
				r.Use(httpmiddleware.RequireRole(httpmiddleware.RoleDoctor, httpmiddleware.RoleFrontdesk))
				r.Post("/schedules/{scheduleID}/confirm", s.ConfirmSchedule)
				r.Get("/schedules/pending-confirmations", s.PendingConfirmations)
				r.Get("/schedules/confirmed", s.ConfirmedSchedules)
				r.Get("/bookings/today", s.Today)
				r.Get("/bookings/{bookingID}", s.Detail)
				r.Post("/bookings/{bookingID}/visit", s.Visit)
				r.Post("/bookings/{bookingID}/verify-otp", s.VerifyOTP)
				r.Post("/token-tables/{tableID}/close", s.CloseDay)
			})
		}

		if a := cfg.Admin; a != nil {
			v1.Route("/admin", func(r chi.Router) {
				r.Use(httpmiddleware.RequireRole(httpmiddleware.RoleAdmin))
				r.Post("/schedules", a.CreateSchedule)
				r.Delete("/schedules/{scheduleID}", a.DeleteSchedule)
				r.Post("/schedules/{scheduleID}/tokens", a.AddToken)
				r.Delete("/schedules/{scheduleID}/tokens/{number}", a.DeleteToken)
				r.Post("/token-tables/{tableID}/tokens/{number}/release", a.ReleaseToken)
				r.Post("/doctors", a.CreateDoctor)
				r.Post("/hospitals", a.CreateHospital)
				r.Post("/scoring/run", a.RunScoring)
			})
		}
	})

	return r
}

func health(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
