package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/haulwise/rebate-claims/internal/config"
	"github.com/haulwise/rebate-claims/internal/container"
	httpserver "github.com/haulwise/rebate-claims/internal/interfaces/http"
	"github.com/haulwise/rebate-claims/internal/report"
	"github.com/haulwise/rebate-claims/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting rebate claim service",
		zap.String("version", "1.0.0"),
		zap.String("address", cfg.Server.Address()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}

	server := httpserver.NewServer(httpserver.ServerConfig{
		Address:         cfg.Server.Address(),
		Mode:            cfg.Server.Mode,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, c.Services().Claims, report.NewReviewQueueExporter(logger), c.DB(), logger)

	// Start returns once the signal context is done and the listener has drained
	serveErr := server.Start(ctx)

	if err := c.Close(); err != nil {
		logger.Error("Shutdown finished with errors", zap.Error(err))
	}
	if serveErr != nil {
		logger.Fatal("HTTP server failed", zap.Error(serveErr))
	}
	logger.Info("Service exited")
}
