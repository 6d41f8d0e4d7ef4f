// Package server is the relay's HTTP surface: a TLS-only chi router in
// front of the relay service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"xrelay/pkg/config"
	"xrelay/pkg/logger"
	"xrelay/pkg/metrics"
	"xrelay/pkg/relay"
	"xrelay/pkg/xcom"
)

// RelayService is the slice of the relay core the HTTP layer dispatches to.
type RelayService interface {
	ListFollowers(ctx context.Context, creds xcom.CredentialBundle, userID, cursor string) (*xcom.FollowerPage, error)
	RemoveFollowers(ctx context.Context, creds xcom.CredentialBundle, actingUserID string, targets []string) ([]relay.RemovalOutcome, error)
}

// Server terminates TLS and routes the two relay operations.
type Server struct {
	cfg    *config.ServerConfig
	relay  RelayService
	router chi.Router
	logger logger.Logger
}

// New builds the server and its router.
func New(cfg *config.ServerConfig, svc RelayService, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Server{
		cfg:    cfg,
		relay:  svc,
		logger: log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	r.Use(recordMetrics)

	r.Route("/api/followers", func(r chi.Router) {
		r.Post("/list", s.handleListFollowers)
		r.Post("/remove", s.handleRemoveFollowers)
	})
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then shuts down gracefully.
// The listener is TLS-only: without cert and key material it refuses to
// start unless plaintext was explicitly opted into for local development.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		switch {
		case s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "":
			s.logger.WithField("addr", s.cfg.Addr).Info("Listening with TLS")
			errCh <- httpServer.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		case s.cfg.AllowInsecureHTTP:
			s.logger.WithField("addr", s.cfg.Addr).Warn("Listening WITHOUT TLS; credential material is exposed in transit")
			errCh <- httpServer.ListenAndServe()
		default:
			errCh <- fmt.Errorf("TLS certificate and key are required (or set allow_insecure_http for local development)")
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}
