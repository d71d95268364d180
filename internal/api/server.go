// Package api exposes ReportBrief's workflows over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/reportbrief/reportbrief/internal/auth"
	"github.com/reportbrief/reportbrief/internal/metrics"
	"github.com/reportbrief/reportbrief/internal/tracing"
)

// ServerOptions carries the listener settings.
type ServerOptions struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TracingEnabled bool
	MetricsEnabled bool
}

// Server is the ReportBrief HTTP server. It binds the chi router to the
// configured address and provides graceful shutdown support.
type Server struct {
	router  chi.Router
	handler *Handler
	addr    string
	httpSrv *http.Server
}

// NewServer mounts h's routes. Zero-value timeouts leave the corresponding
// http.Server field at its default.
func NewServer(h *Handler, opts ServerOptions) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	if opts.TracingEnabled {
		r.Use(tracing.HTTPMiddleware)
	}

	r.Get("/health", h.HandleHealth)
	if opts.MetricsEnabled {
		r.Get("/metrics", metrics.PrometheusHandler(h.collector))
		r.Get("/stats", metrics.StatsHandler(h.collector))
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.verifier, h.logger))
		if h.limiter != nil {
			r.Use(h.limiter.Middleware)
		}

		r.Post("/upload", h.HandleUpload)
		r.Post("/summarize", h.HandleSummarize)
		r.Get("/usage-check", h.HandleUsageCheck)
		r.Get("/usage", h.HandleUsage)
		r.Post("/log-event", h.HandleLogEvent)
		r.Get("/reports", h.HandleListReports)
		r.Get("/reports/{id}", h.HandleGetReport)
	})

	return &Server{
		router:  r,
		handler: h,
		addr:    opts.Addr,
		httpSrv: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
	}
}

// Router returns the underlying chi.Router.
func (s *Server) Router() chi.Router {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start begins listening for HTTP connections. It blocks until the server
// is shut down or encounters a fatal error.
func (s *Server) Start() error {
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// StartTLS is Start over HTTPS with the given certificate and key files.
func (s *Server) StartTLS(certFile, keyFile string) error {
	if err := s.httpSrv.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server (TLS): %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Msg("request completed")
		})
	}
}
