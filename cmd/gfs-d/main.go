package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/rmax-ai/gfs/pkg/api"
	"github.com/rmax-ai/gfs/pkg/logging"
	"github.com/rmax-ai/gfs/pkg/registry"
)

var (
	Version   = "v0.1.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, `{"level":"fatal","msg":"gfs-d_failed","error":%q}`+"\n", err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("system_started",
		zap.String("component", "gfs-d"),
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_time", BuildTime),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Error("failed_to_init_store", zap.String("backend", cfg.Backend), zap.Error(err))
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Error("failed_to_close_store", zap.Error(err))
		} else {
			log.Info("store_closed")
		}
	}()
	log.Info("store_initialized", zap.String("backend", cfg.Backend))

	opts := []registry.Option{registry.WithLogger(log)}
	if cfg.ReferenceChecks {
		opts = append(opts, registry.WithReferenceChecks())
	}
	reg := registry.New(backend, opts...)
	srv := api.NewServer(reg, cfg.Addr, api.WithLogger(log), api.WithVersion(Version))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutdown_initiated")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("server_shutdown_failed", zap.Error(err))
		return err
	}
	log.Info("shutdown_complete")
	return nil
}
