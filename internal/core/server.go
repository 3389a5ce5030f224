// Package core provides the HTTP chassis for the treasury service: a chi
// router with the cross-cutting middleware, response helpers, request
// validation and the health endpoint. Domain handlers register their routes
// through the registrar slices so core never imports them.
package core

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"treasury/internal/config"
)

// MetricsCollector records API request telemetry.
type MetricsCollector interface {
	// RecordRequest receives the chi route pattern as endpoint, never the raw
	// path, to keep cardinality bounded.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a handler group's routes on a router.
type RouteRegistrar func(r chi.Router)

// Server holds the router and everything the middleware chain needs.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Validator    *Validator
	Metrics      MetricsCollector
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount JSON routes under /v1. They get the request
	// timeout and response compression.
	V1RouteRegistrars []RouteRegistrar
	// StreamRouteRegistrars mount long-lived routes under /v1. They get
	// neither a timeout nor compression.
	StreamRouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer creates a Server. Routes are mounted by MountRoutes after the
// caller has filled in the registrars.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}
	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}
