// Package http exposes the ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bottega/internal/auth"
	"bottega/internal/log"
	"bottega/internal/middleware/ratelimit"
	"bottega/internal/middleware/security"
	"bottega/internal/middleware/trace"
	"bottega/internal/services"
)

type Config struct {
	Addr               string
	RateLimitPerMinute int
	// LoginAttemptsPerMinute is the per-IP budget for POST /api/auth/login,
	// counted apart from other writes.
	LoginAttemptsPerMinute int
	TrustedProxies         []string
	// SecureCookies marks the session cookie Secure; enable behind TLS.
	SecureCookies bool
	// Ready backs /readyz. Nil means always ready.
	Ready func(context.Context) error
}

// Server serves the ledger API. It owns the rate limiter's cleanup
// goroutine; call Shutdown to release it.
type Server struct {
	*http.Server

	ledger        *services.Ledger
	guard         *auth.Guard
	logger        *log.Logger
	errors        *log.StructuredLogger
	detector      *security.Detector
	limiter       *ratelimit.Limiter
	tracer        *trace.Middleware
	ready         func(context.Context) error
	secureCookies bool
	now           func() time.Time

	shutdownOnce sync.Once
}

func NewServer(cfg Config, ledger *services.Ledger, guard *auth.Guard, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	if len(cfg.TrustedProxies) > 0 {
		if err := detector.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			return nil, err
		}
	}

	s := &Server{
		ledger:        ledger,
		guard:         guard,
		logger:        logger,
		errors:        log.NewStructuredLogger(logger),
		detector:      detector,
		limiter:       ratelimit.NewLimiter(ratelimit.Config{Rules: ratelimit.DefaultRules(cfg.LoginAttemptsPerMinute, cfg.RateLimitPerMinute)}),
		tracer:        trace.NewMiddleware(detector.ExtractClientIP),
		ready:         cfg.Ready,
		secureCookies: cfg.SecureCookies,
		now:           time.Now,
	}

	s.Server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.tracer.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)
	r.Use(log.Middleware(s.logger))
	r.Use(log.RequestIDMiddleware(trace.GetRequestID))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "no such endpoint"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed", Message: r.Method + " is not supported here"})
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit))

		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/auth/me", s.handleMe)
			r.Get("/dashboard", s.handleDashboard)

			r.Route("/sales", func(r chi.Router) {
				r.Get("/", s.handleListSales)
				r.Post("/", s.handleSubmitSale)
				r.Put("/{id}", s.handleUpdateSale)
				r.Delete("/{id}", s.handleDeleteSale)
			})
			r.Route("/shifts", func(r chi.Router) {
				r.Get("/", s.handleListShifts)
				r.Post("/", s.handleSubmitShift)
				r.Put("/{id}", s.handleUpdateShift)
				r.Delete("/{id}", s.handleDeleteShift)
			})
			r.Route("/expenses", func(r chi.Router) {
				r.Get("/", s.handleListExpenses)
				r.Post("/", s.handleCreateExpense)
				r.Put("/{id}", s.handleUpdateExpense)
				r.Delete("/{id}", s.handleDeleteExpense)
			})
			r.Route("/categories", func(r chi.Router) {
				r.Get("/", s.handleListCategories)
				r.Post("/", s.handleCreateCategory)
				r.Put("/{id}", s.handleUpdateCategory)
				r.Delete("/{id}", s.handleDeleteCategory)
			})
			r.Route("/suppliers", func(r chi.Router) {
				r.Get("/", s.handleListSuppliers)
				r.Post("/", s.handleCreateSupplier)
				r.Put("/{id}", s.handleUpdateSupplier)
				r.Delete("/{id}", s.handleDeleteSupplier)
			})
			r.Route("/users", func(r chi.Router) {
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Put("/{id}", s.handleUpdateUser)
				r.Delete("/{id}", s.handleDeleteUser)
			})
			r.Route("/targets", func(r chi.Router) {
				r.Get("/", s.handleListTargets)
				r.Put("/", s.handleUpsertTarget)
			})
		})
	})
	return r
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limited", Message: "too many requests, retry in a minute"})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown stops the limiter and drains the server. Safe to call twice.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Metrics reports request counters for operators.
func (s *Server) Metrics() (trace.Metrics, ratelimit.Metrics, security.DetectionMetrics) {
	return s.tracer.GetMetrics(), s.limiter.GetMetrics(), s.detector.GetMetrics()
}
