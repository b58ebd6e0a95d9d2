package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/Transit/internal/config"
	"github.com/GriffinCanCode/Transit/internal/logging"
	"github.com/GriffinCanCode/Transit/internal/server"
)

func main() {
	cfg := config.LoadOrDefault()

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log = logging.NewDefault()
	}
	defer log.Sync() //nolint:errcheck

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Fatal("failed to build daemon", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("transitd starting",
		zap.String("debug_addr", cfg.Debug.Host+":"+cfg.Debug.Port),
		zap.Bool("bridge", cfg.Bridge.Enabled),
	)
	if err := srv.Run(ctx); err != nil {
		log.Fatal("daemon exited", zap.Error(err))
	}
	log.Info("transitd stopped")
}
