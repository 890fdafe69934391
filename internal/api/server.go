package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"shadow-sync/internal/metrics"
	"shadow-sync/pkg/log"
)

const (
	serverReadHeaderTimeout = 10 * time.Second
	serverReadTimeout       = 30 * time.Second
	serverWriteTimeout      = 30 * time.Second
	serverIdleTimeout       = 2 * time.Minute
)

// NewHandler assembles the gateway: sync API, liveness probe and Prometheus metrics.
func NewHandler(statusSvc StatusService, triggerSvc TriggerService, mt *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		loggingMiddleware,
		mt.Middleware,
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
	})
	r.Handle("/metrics", mt.Handler())
	r.Mount("/api/v1", Router(statusSvc, triggerSvc))
	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	logger := log.Logger.With().Str("component", "gateway").Logger()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// Server is the HTTP gateway. Run blocks until ctx is cancelled and then drains connections.
type Server struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          zerolog.Logger
}

func NewServer(address string, handler http.Handler, shutdownTimeout time.Duration) *Server {
	return &Server{
		server: &http.Server{
			Addr:              address,
			Handler:           handler,
			ReadHeaderTimeout: serverReadHeaderTimeout,
			ReadTimeout:       serverReadTimeout,
			WriteTimeout:      serverWriteTimeout,
			IdleTimeout:       serverIdleTimeout,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          log.Logger.With().Str("component", "gateway").Str("address", address).Logger(),
	}
}

func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", listener.Addr().String()).Msg("Gateway listening")
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Gateway forced to shut down")
		return err
	}
	s.logger.Info().Msg("Gateway shutdown complete")
	return nil
}
