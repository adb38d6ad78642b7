// Package api serves the LedgerLens REST surface over chi.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/ledgerlens/internal/domain"
)

// Options holds the optional server collaborators.
type Options struct {
	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string

	// Requests receives one observation per request.
	Requests RequestObserver
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, handler *Handler, opts Options) *Server {
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware(opts.Requests))
	router.Use(CORSMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Method(http.MethodGet, path, opts.Metrics)
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/metadata", handler.Metadata)
		r.Post("/fraud/predict", handler.Predict)
		r.Post("/admin/invalidate", handler.Invalidate)

		r.Group(func(r chi.Router) {
			r.Use(handler.RequireLedger)

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", handler.ListTransactions)
				r.Get("/recent", handler.Recent)
				r.Get("/types", handler.Types)
				r.Post("/search", handler.Search)
				r.Get("/by-customer/{id}", handler.ByCustomer)
				r.Get("/to-customer/{id}", handler.ToCustomer)
				r.Get("/{id}", handler.GetTransaction)
				r.Delete("/{id}", handler.DeleteTransaction)
			})

			r.Route("/stats", func(r chi.Router) {
				r.Get("/overview", handler.Overview)
				r.Get("/amount-distribution", handler.AmountDistribution)
				r.Get("/by-type", handler.ByType)
				r.Get("/daily", handler.Daily)
			})

			r.Get("/fraud/summary", handler.FraudSummary)
			r.Get("/fraud/by-type", handler.FraudByType)

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", handler.ListCustomers)
				r.Get("/top", handler.TopCustomers)
				r.Get("/{id}", handler.GetCustomer)
			})
		})
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
