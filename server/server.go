package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v3"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/sig-0/p2panel/market"
	"github.com/sig-0/p2panel/storage"

	"github.com/sig-0/p2panel/server/config"
)

// RoutesFn is a callback that receives a router for registering routes
type RoutesFn func(router chi.Router)

var noopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Refresher runs user-triggered acquisition cycles and reports
// the remaining cooldown
type Refresher interface {
	RefreshAll(ctx context.Context) (*market.PriceSnapshot, error)
	Cooldown() time.Duration
}

// SnapshotReader exposes the published in-memory snapshot
type SnapshotReader interface {
	Snapshot() *market.PriceSnapshot
}

type Server struct {
	logger *slog.Logger
	config *config.Config

	refresher Refresher
	prices    SnapshotReader
	storage   storage.Storage

	// relay, mounted on the proxy route. It gates methods
	// and shapes its own responses
	relay http.Handler

	mux *chi.Mux
}

// New creates a new server instance
func New(
	refresher Refresher,
	prices SnapshotReader,
	store storage.Storage,
	relay http.Handler,
	opts ...Option,
) (*Server, error) {
	s := &Server{
		logger:    noopLogger,
		refresher: refresher,
		prices:    prices,
		storage:   store,
		relay:     relay,
		config:    config.DefaultConfig(),
		mux:       chi.NewMux(),
	}

	// Apply the options
	for _, opt := range opts {
		opt(s)
	}

	// Validate the configuration
	if err := config.ValidateConfig(s.config); err != nil {
		return nil, fmt.Errorf("invalid configuration, %w", err)
	}

	// Set up the CORS middleware
	if s.config.CORSConfig != nil {
		corsMiddleware := cors.New(cors.Options{
			AllowedOrigins: s.config.CORSConfig.AllowedOrigins,
			AllowedMethods: s.config.CORSConfig.AllowedMethods,
			AllowedHeaders: s.config.CORSConfig.AllowedHeaders,
		})

		s.mux.Use(corsMiddleware.Handler)
	}

	s.mux.Use(httplog.RequestLogger(s.logger, &httplog.Options{
		Level:         slog.LevelInfo,
		Schema:        httplog.SchemaOTEL,
		RecoverPanics: true,
		Skip: func(_ *http.Request, respStatus int) bool {
			return respStatus == 404 || respStatus == 405
		},
	}))

	// Register the health check handler
	s.mux.Get("/health", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
	})

	// Register the API docs
	s.mux.Get("/openapi.yaml", s.OpenAPI)
	s.mux.Get("/docs", s.Redoc)

	// Register the panel API
	s.mux.Post("/api/refresh", s.Refresh)
	s.mux.Get("/api/snapshot", s.SnapshotState)
	s.mux.Get("/api/reference-prices", s.ReferencePrices)
	s.mux.Post("/api/convert", s.Convert)
	s.mux.Get("/api/inputs", s.Inputs)

	// The relay does its own method and CORS handling
	if s.relay != nil {
		s.mux.Handle("/api/proxy", s.relay)
	}

	return s, nil
}

// Routes calls fn with the server mux so callers can add endpoints
func (s *Server) Routes(fn RoutesFn) {
	if fn == nil {
		return
	}

	fn(s.mux)
}

// Serve serves the conversion panel service
func (s *Server) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.mux,
		ReadHeaderTimeout: 60 * time.Second,
	}

	group, gCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer s.logger.Info("server shut down")

		ln, err := net.Listen("tcp", server.Addr)
		if err != nil {
			return err
		}

		s.logger.Info(
			fmt.Sprintf(
				"server started at %s",
				ln.Addr().String(),
			),
		)

		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	group.Go(func() error {
		<-gCtx.Done()

		s.logger.Info("server to be shutdown")

		wsCtx, cancel := context.WithTimeout(context.Background(), time.Second*30)
		defer cancel()

		return server.Shutdown(wsCtx)
	})

	return group.Wait()
}
