// Package server exposes the task and auth operations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"task-manager/internal/auth"
	"task-manager/internal/config"
	"task-manager/internal/logger"
	"task-manager/internal/manager"
)

type Deps struct {
	Tasks       *manager.TaskManager
	Users       *manager.UserManager
	Tokens      auth.Decoder
	Health      Pinger
	CORSOrigins []string
}

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(metrics)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/", rootHandler)
	r.Get("/healthz", healthHandler(d.Health))
	r.Handle("/metrics", promhttp.Handler())

	th := taskHandler{tasks: d.Tasks}
	ah := authHandler{users: d.Users}
	r.Route("/api", func(r chi.Router) {
		r.Get("/", apiIndexHandler)
		r.Post("/auth/signup", ah.signup)
		r.Post("/auth/login", ah.login)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(d.Tokens))
			r.Get("/tasks", th.list)
			r.Post("/tasks", th.create)
			r.Put("/tasks/{id}", th.update)
			r.Delete("/tasks/{id}", th.remove)
		})
	})
	return r
}

// New builds an http.Server with the configured timeouts.
func New(cfg config.ServerConfig, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort("", cfg.Port),
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully within
// shutdownTimeout.
func Run(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
