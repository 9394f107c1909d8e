// Package api serves the settings form over HTTP: one form session per page
// load, the cross-tab change stream, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	apimw "github.com/hugo-lorenzo-mato/bsqa/internal/api/middleware"
	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/events"
	"github.com/hugo-lorenzo-mato/bsqa/internal/logging"
	"github.com/hugo-lorenzo-mato/bsqa/internal/metrics"
)

// Settings is the shared store behind every form session.
type Settings interface {
	ReadJiraSession(ctx context.Context) *core.JiraSessionCredentials
	ClearJiraSession(ctx context.Context) error
	ClearAll(ctx context.Context) error
	ChangeMarker(ctx context.Context) string
}

// Server provides HTTP REST API endpoints for the settings form.
type Server struct {
	router         chi.Router
	sessions       *SessionPool
	settings       Settings
	eventBus       *events.EventBus
	logger         *logging.Logger
	allowedOrigins []string
	gatherer       prometheus.Gatherer
	requestTimeout time.Duration
	heartbeat      time.Duration
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAllowedOrigins sets the CORS origins. An empty list disables CORS.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithRequestTimeout bounds non-streaming requests.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.requestTimeout = d
	}
}

// WithHeartbeat sets how often idle SSE streams get a keepalive comment.
func WithHeartbeat(d time.Duration) ServerOption {
	return func(s *Server) {
		s.heartbeat = d
	}
}

// NewServer creates a new API server.
func NewServer(sessions *SessionPool, settings Settings, eventBus *events.EventBus, opts ...ServerOption) *Server {
	s := &Server{
		sessions:       sessions,
		settings:       settings,
		eventBus:       eventBus,
		logger:         logging.NewNop(),
		gatherer:       prometheus.DefaultGatherer,
		requestTimeout: 60 * time.Second,
		heartbeat:      30 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.heartbeat <= 0 {
		s.heartbeat = 30 * time.Second
	}

	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures Chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(metricsMiddleware)

	if len(s.allowedOrigins) > 0 {
		corsHandler := cors.New(cors.Options{
			AllowedOrigins:   s.allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "If-Match", "X-Requested-With", apimw.HeaderConfirm},
			ExposedHeaders:   []string{"ETag", "Content-Disposition"},
			AllowCredentials: false,
			MaxAge:           300,
		})
		r.Use(corsHandler.Handler)
	}

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// SSE must not be cut by the request timeout.
		r.Get("/events", s.handleSSE)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))
			r.Use(apimw.ConfirmationMiddleware)

			r.Delete("/settings", s.handleClearSettings)
			r.Get("/jira/session", s.handleGetJiraSession)
			r.Delete("/jira/session", s.handleDeleteJiraSession)

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", s.handleOpenSession)

				r.Route("/{sessionID}", func(r chi.Router) {
					r.Use(apimw.SessionContextMiddleware(s.sessions, s.logger))
					r.Use(apimw.RequireSession(s.logger))

					r.Get("/", s.handleGetSession)
					r.Delete("/", s.handleCloseSession)
					r.Patch("/fields", s.handleChangeFields)
					r.Post("/toggles", s.handleToggle)
					r.Post("/save", s.handleSave)
					r.Post("/import", s.handleImport)
					r.Get("/export", s.handleExport)
					r.Post("/navigate", s.handleNavigate)
					r.Get("/unload", s.handleUnload)
					r.Post("/clear", s.handleClearSession)
					r.Post("/jira/test", s.handleTestJira)
					r.Delete("/jira/session", s.handleLogoutJira)
					r.Post("/ai/test", s.handleTestAI)
				})
			})
		})
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// metricsMiddleware records request counts and latency by route pattern, so
// session ids do not explode the label space.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"time":     time.Now().UTC().Format(time.RFC3339),
		"sessions": s.sessions.Len(),
	})
}

// ListenAndServe starts the HTTP server and shuts it down when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
