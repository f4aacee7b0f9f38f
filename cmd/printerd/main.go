// cmd/printerd/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"printer-service/internal/config"
	"printer-service/internal/health"
	"printer-service/internal/model"
	"printer-service/internal/registry"
	"printer-service/internal/service"
	"printer-service/internal/utils"
)

// Application represents the printer daemon
type Application struct {
	config *config.Config
	logger *zap.Logger

	registry       *registry.Registry
	monitor        *health.Monitor
	printerService *service.PrinterService
}

func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Service starting",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.Int("printers", len(cfg.Printers)),
	)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	app.registry = registry.New(logger)
	app.monitor = health.NewMonitor(
		app.registry,
		cfg.Health.CheckInterval,
		cfg.Health.CriticalThreshold,
		logger,
	)
	app.printerService = service.NewPrinterService(app.registry, app.monitor, logger)

	if err := app.registerPrinters(); err != nil {
		return nil, err
	}

	return app, nil
}

// registerPrinters builds drivers for every configured printer. Connections
// are made lazily on first use; an unreachable printer must not prevent
// startup.
func (app *Application) registerPrinters() error {
	configs := make([]model.DeviceConfig, 0, len(app.config.Printers))
	for i := range app.config.Printers {
		configs = append(configs, app.config.Printers[i].ToDeviceConfig())
	}

	if err := app.printerService.RegisterPrinters(configs); err != nil {
		return err
	}

	for _, cfg := range configs {
		app.logger.Info("Printer registered",
			zap.String("name", cfg.Name),
			zap.String("identity", cfg.Identity().String()),
			zap.Duration("timeout", cfg.Timeout),
		)
	}
	return nil
}

func (app *Application) Start() error {
	ctx := context.Background()

	app.monitor.Start(ctx)

	app.waitForShutdown()
	return nil
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	app.monitor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app.registry.DisconnectAll(ctx)
	app.logger.Info("All printers disconnected")

	if err := app.logger.Sync(); err != nil {
		fmt.Printf("Logger sync error: %v\n", err)
	}
}
