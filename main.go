package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voiceout_server/config"
	"voiceout_server/internal/bootstrap"
	"voiceout_server/pkg/logger"

	"github.com/joho/godotenv"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Initialize logger early
	logger.Init(logger.Config{
		Level:   logger.LevelInfo,
		Service: "voiceout",
	})

	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	mode := flag.String("mode", "all", "Run mode: api, worker, all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	deps, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer deps.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "api":
		runAPI(ctx, deps)
	case "worker":
		runWorker(ctx, deps)
	case "all":
		workerDone := make(chan struct{})
		go func() {
			defer close(workerDone)
			runWorker(ctx, deps)
		}()
		runAPI(ctx, deps)
		<-workerDone
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}
}

func runAPI(ctx context.Context, deps *bootstrap.Dependencies) {
	app := bootstrap.NewAPIServer(deps)

	// Graceful shutdown with timeout
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- app.Shutdown()
		}()

		select {
		case err := <-done:
			if err != nil {
				logger.Error("Error shutting down: %v", err)
			} else {
				logger.Info("API server shut down gracefully")
			}
		case <-shutdownCtx.Done():
			logger.Warn("API shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	addr := ":" + deps.Config.Port
	logger.Info("Starting API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}

func runWorker(ctx context.Context, deps *bootstrap.Dependencies) {
	logger.Info("Starting worker...")
	bootstrap.NewWorker(deps).Run(ctx)
	logger.Info("Worker shut down gracefully")
}
