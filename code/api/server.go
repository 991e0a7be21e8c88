package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xz3dev/quacklytics-sub000/code/api/routes"
	"github.com/xz3dev/quacklytics-sub000/code/sdk"
)

// Server exposes a session over a local HTTP API
type Server struct {
	router  *chi.Mux
	session *sdk.Session
	log     *zap.Logger
	addr    string
	server  *http.Server
}

// NewServer mounts every route for session on a fresh router
func NewServer(session *sdk.Session, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(logger))

	s := &Server{
		router:  router,
		session: session,
		log:     logger,
		addr:    addr,
	}
	routes.RegisterAllRoutes(router, session)
	return s
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("api server starting", zap.String("addr", s.addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Serve starts the session's background sync, serves the API and blocks until ctx ends or
// SIGINT/SIGTERM arrives, then shuts down within 30 seconds.
func Serve(ctx context.Context, session *sdk.Session, addr string, logger *zap.Logger) error {
	server := NewServer(session, addr, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		server.log.Info("shutdown signal received, stopping server")
	case serveErr = <-errCh:
		if serveErr != nil {
			serveErr = fmt.Errorf("serve %s: %w", addr, serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		server.log.Warn("error during shutdown", zap.Error(err))
	} else {
		server.log.Info("server stopped gracefully")
	}
	return serveErr
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
