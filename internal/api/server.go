package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"tonyukuk-playground/internal/config"
	"tonyukuk-playground/internal/monitor"
	"tonyukuk-playground/internal/playground"
)

// Server is the playground's HTTP front end.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
	cfg        *config.Config
}

// NewServer creates and configures the HTTP server with all routes and middleware.
func NewServer(cfg *config.Config, service *playground.Service, metrics *monitor.Metrics) *Server {
	handlers := NewHandlers(service)

	s := &Server{
		handlers: handlers,
		cfg:      cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /run", handlers.HandleRun)
	mux.HandleFunc("POST /compile-wasm", handlers.HandleCompileWasm)
	mux.HandleFunc("GET /saglik", handlers.HandleHealth)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("OPTIONS /", handlers.HandlePreflight)
	mux.HandleFunc("POST /", handlers.HandleNotFound)
	mux.HandleFunc("/", handlers.HandleMethodNotAllowed)

	// Apply middleware chain (outermost first)
	var handler http.Handler = mux
	handler = MetricsMiddleware(metrics)(handler)
	handler = MaxBodyMiddleware(cfg.Limits.MaxCodeBytes)(handler)
	handler = SecurityHeadersMiddleware(handler)
	handler = RecoveryMiddleware(handlers.encoder, service.Internal())(handler)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for requests. TLS is terminated by the reverse
// proxy in front of the service.
func (s *Server) Start() error {
	log.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
