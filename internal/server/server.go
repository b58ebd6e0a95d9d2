package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/Transit/internal/api"
	"github.com/GriffinCanCode/Transit/internal/bridge"
	"github.com/GriffinCanCode/Transit/internal/config"
	"github.com/GriffinCanCode/Transit/internal/core"
	"github.com/GriffinCanCode/Transit/internal/logging"
	"github.com/GriffinCanCode/Transit/internal/policy"
	"github.com/GriffinCanCode/Transit/internal/pool"
	"github.com/GriffinCanCode/Transit/internal/registry"
)

// Server owns the router and its outward surfaces.
type Server struct {
	log      *logging.Logger
	cfg      *config.Config
	router   *core.Router
	registry *registry.Manager
	debug    *api.Server
}

// New builds the daemon from configuration.
func New(cfg *config.Config, log *logging.Logger) (*Server, error) {
	if log == nil {
		log = logging.NewNop()
	}

	chk := policy.NewPermissive()
	if cfg.Policy.Path != "" {
		loaded, err := policy.Load(cfg.Policy.Path)
		if err != nil {
			return nil, err
		}
		chk = loaded
		log.Info("policy loaded", zap.String("path", cfg.Policy.Path))
	}

	router := core.NewRouter(core.Options{
		Logger:     log,
		BufferSize: cfg.Transport.BufferSize,
		Pool: pool.Config{
			MinWorkers: cfg.Pool.MinWorkers,
			MaxWorkers: cfg.Pool.MaxWorkers,
			QueueDepth: cfg.Pool.QueueDepth,
			ShrinkIdle: cfg.Pool.ShrinkIdle,
		},
	})

	reg, err := registry.Install(router, chk, log)
	if err != nil {
		return nil, err
	}

	s := &Server{
		log:      log.Named("server"),
		cfg:      cfg,
		router:   router,
		registry: reg,
	}

	if cfg.Debug.Enabled {
		s.debug = api.NewServer(api.Config{
			Host:              cfg.Debug.Host,
			Port:              cfg.Debug.Port,
			RequestsPerSecond: cfg.Debug.RequestsPerSecond,
			Burst:             cfg.Debug.Burst,
		}, router, reg, log)

		if cfg.Bridge.Enabled {
			s.debug.Mount(cfg.Bridge.Path, bridge.NewHandler(router, bridge.Config{
				UID:         cfg.Bridge.UID,
				Compression: cfg.Bridge.Compression,
			}, log))
		}
	}
	return s, nil
}

// DebugHandler exposes the debug route tree (bridge included when
// enabled), nil when the debug surface is off. Embedders can mount it on
// their own listener instead of calling Run.
func (s *Server) DebugHandler() http.Handler {
	if s.debug == nil {
		return nil
	}
	return s.debug.Handler()
}

// Router exposes the transport for in-process services.
func (s *Server) Router() *core.Router { return s.router }

// Registry exposes the service registry.
func (s *Server) Registry() *registry.Manager { return s.registry }

// Run serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	if s.debug == nil {
		<-ctx.Done()
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.debug.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.debug.Shutdown(shutdownCtx)
}
