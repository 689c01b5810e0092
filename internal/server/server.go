// Package server exposes the gateway's HTTP surface on echo: liveness, readiness,
// metrics, the API index and the proxied /api routes.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"api-gateway/internal/health"
	"api-gateway/internal/metrics"
	"api-gateway/internal/proxy"
	"api-gateway/internal/route"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

const (
	DefaultName    = "E-Commerce API Gateway"
	DefaultVersion = "1.0.0"
)

type Options struct {
	Table      *route.Table
	Dispatcher *proxy.Dispatcher
	Prober     *health.Prober
	Recorder   *metrics.Recorder
	// APIMiddleware wraps every /api request (rate limit, concurrency cap).
	APIMiddleware []func(http.Handler) http.Handler
	Logger        zerolog.Logger
	Name          string
	Version       string
	// WriteTimeout bounds a whole response, proxied bodies included.
	WriteTimeout time.Duration
	Now          func() time.Time
}

type Server struct {
	echo       *echo.Echo
	table      *route.Table
	dispatcher *proxy.Dispatcher
	prober     *health.Prober
	recorder   *metrics.Recorder
	backends   []health.Backend
	logger     zerolog.Logger
	name       string
	version    string
	now        func() time.Time
}

func New(opts Options) *Server {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 60 * time.Second
	}

	s := &Server{
		echo:       echo.New(),
		table:      opts.Table,
		dispatcher: opts.Dispatcher,
		prober:     opts.Prober,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		name:       opts.Name,
		version:    opts.Version,
		now:        opts.Now,
	}
	for _, rt := range opts.Table.Routes() {
		s.backends = append(s.backends, health.Backend{Name: rt.Name, BaseURL: rt.Target.String()})
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError
	s.echo.Server.ReadHeaderTimeout = 10 * time.Second
	s.echo.Server.ReadTimeout = 30 * time.Second
	s.echo.Server.WriteTimeout = opts.WriteTimeout
	s.echo.Server.IdleTimeout = 90 * time.Second

	s.setupRoutes(opts.APIMiddleware)
	return s
}

func (s *Server) setupRoutes(apiMiddleware []func(http.Handler) http.Handler) {
	s.echo.Use(s.completion)
	s.echo.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			s.logger.Error().Err(err).Bytes("stack", stack).Str("path", c.Request().URL.Path).Msg("Recovered from panic")
			return err
		},
	}))
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.Secure())
	s.echo.Use(middleware.CORS())

	getOrHead := []string{http.MethodGet, http.MethodHead}
	s.echo.Match(getOrHead, "/health", s.liveness)
	s.echo.Match(getOrHead, "/ready", s.readiness)
	s.echo.Match(getOrHead, "/metrics", echo.WrapHandler(s.recorder.Handler()))

	mws := make([]echo.MiddlewareFunc, 0, len(apiMiddleware))
	for _, m := range apiMiddleware {
		mws = append(mws, echo.WrapMiddleware(m))
	}
	api := s.echo.Group("/api", mws...)
	api.Match(getOrHead, "", s.apiIndex)
	api.Any("/*", echo.WrapHandler(s.dispatcher))
}

// Handler returns the root handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Strs("routes", s.table.Prefixes()).Msg("Gateway listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run serves on addr until ctx is done, then shuts down gracefully. It returns only
// after in-flight requests have drained or shutdownTimeout has elapsed.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.Shutdown(shutdownCtx)
	if startErr := <-errCh; startErr != nil && err == nil {
		err = startErr
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down gateway...")
	return s.echo.Shutdown(ctx)
}
