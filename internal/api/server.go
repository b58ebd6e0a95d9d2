package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/Transit/internal/api/middleware"
	"github.com/GriffinCanCode/Transit/internal/core"
	"github.com/GriffinCanCode/Transit/internal/logging"
	"github.com/GriffinCanCode/Transit/internal/registry"
)

// Config contains server configuration.
type Config struct {
	Host              string
	Port              string
	RequestsPerSecond int
	Burst             int
}

// Server wraps the HTTP server and its routes.
type Server struct {
	log    *logging.Logger
	engine *gin.Engine
	srv    *http.Server
}

// NewServer builds the debug server around a router and its registry.
func NewServer(cfg Config, router *core.Router, reg *registry.Manager, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	rl := middleware.DefaultRateLimitConfig()
	if cfg.RequestsPerSecond > 0 {
		rl.RequestsPerSecond = cfg.RequestsPerSecond
	}
	if cfg.Burst > 0 {
		rl.Burst = cfg.Burst
	}
	engine.Use(middleware.RateLimit(rl))

	handlers := NewHandlers(router, reg)
	engine.GET("/", handlers.Root)
	engine.GET("/health", handlers.Health)
	engine.GET("/services", handlers.Services)
	engine.GET("/stats", handlers.Stats)
	engine.GET("/dump", handlers.Dump)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		router.Metrics().Registry(),
		promhttp.HandlerOpts{},
	)))

	return &Server{
		log:    log.Named("api"),
		engine: engine,
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Mount attaches an extra handler, e.g. the websocket bridge endpoint.
func (s *Server) Mount(path string, h http.Handler) {
	s.engine.GET(path, gin.WrapH(h))
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves until Shutdown; it returns http.ErrServerClosed on a clean
// stop.
func (s *Server) Start() error {
	s.log.Info("debug server listening", zap.String("addr", s.srv.Addr))
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
