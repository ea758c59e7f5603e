package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"cookbooks/internal/backend"
	"cookbooks/internal/cli"
	"cookbooks/internal/config"
	"cookbooks/internal/log"
	"cookbooks/internal/services"
	"cookbooks/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentWorker)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Worker stopped", log.FieldError, err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) (err error) {
	logger.Info("Starting cookbooks-worker", log.FieldOperation, log.OpStartup)

	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required for the worker")
	}

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("backend configuration: %w", err)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		return fmt.Errorf("create %s backend: %w", cfg.DataBackend, err)
	}
	defer func() {
		if cerr := res.Cleanup(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("cleanup: %w", cerr))
		}
	}()
	if res.Events == nil {
		return errors.New("AMQP client unavailable, nothing to consume")
	}

	// The worker only consumes; it never publishes back.
	books := services.NewBooks(res.Store, nil, logger)

	// A memory store is private to this process, reloading it would discard
	// every applied event.
	resync := cfg.ResyncInterval
	if backendConfig.Type == backend.MemoryBackend {
		logger.Info("Periodic resync disabled for memory backend")
		resync = 0
	}

	w := worker.NewLedgerWorker(books, res.Events, resync, logger)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		logger.Info("Shutting down worker...", log.FieldOperation, log.OpShutdown)
		select {
		case err := <-done:
			logger.Info("Worker shutdown complete")
			return err
		case <-time.After(cfg.ShutdownTimeout):
			logger.Warn("Shutdown timeout reached")
			return nil
		}
	}
}
