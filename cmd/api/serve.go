package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/PuraVida-Technologies/galoy/internal/config"
	"github.com/PuraVida-Technologies/galoy/internal/infra"
	"github.com/PuraVida-Technologies/galoy/internal/lock"
	"github.com/PuraVida-Technologies/galoy/internal/logging"
	"github.com/PuraVida-Technologies/galoy/internal/metrics"
	"github.com/PuraVida-Technologies/galoy/internal/routes"
	"github.com/PuraVida-Technologies/galoy/internal/server"
	"github.com/PuraVida-Technologies/galoy/internal/telemetry"
	"github.com/PuraVida-Technologies/galoy/migrations"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (default)",
	RunE:  runServe,
}

func newLogger(cfg config.Config) *slog.Logger {
	logger := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: cfg.AppName,
		Env:     cfg.AppEnv,
	})
	slog.SetDefault(logger)
	return logger
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx := context.Background()

	tp, err := telemetry.Setup(telemetry.Options{Service: cfg.AppName, Env: cfg.AppEnv, Stdout: cfg.TraceStdout})
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("shutdown tracer provider", "error", err)
		}
	}()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	if err := infra.Migrate(ctx, db, migrations.FS); err != nil {
		return err
	}

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}()

	lockNodes, err := infra.NewRedisClients(ctx, cfg.LockRedisURLs)
	if err != nil {
		return fmt.Errorf("connect lock nodes: %w", err)
	}
	defer func() {
		if err := infra.CloseRedisClients(lockNodes); err != nil {
			logger.Warn("close lock nodes", "error", err)
		}
	}()
	locker, err := lock.NewManager(lock.NewRedisStores(lockNodes...), cfg.Lock, lock.WithLogger(logging.Component(logger, "lock")))
	if err != nil {
		return err
	}
	logger.Info("wallet lock ready", "nodes", len(lockNodes), "quorum", locker.Quorum(), "ttl", cfg.Lock.TTL)

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = infra.NewNATSConn(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
	} else {
		logger.Warn("NATS_URL not set, payment notifications are only logged")
	}

	reg := metrics.NewRegistry()
	metrics.Register(reg)

	srv, err := server.New(routes.Deps{
		Cfg:       cfg,
		DB:        db,
		Cache:     cache,
		Locker:    locker,
		LockNodes: lockNodes,
		NATS:      nc,
		Registry:  reg,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server exited cleanly")
	return nil
}
