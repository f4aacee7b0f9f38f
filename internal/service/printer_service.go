// internal/service/printer_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"printer-service/internal/health"
	"printer-service/internal/model"
	"printer-service/internal/registry"
	"printer-service/pkg/printer"
)

// PrinterService is the caller-facing boundary of the module. It resolves
// drivers through the registry, connects them lazily and converts driver
// errors into structured results where the POS flow must not be blocked.
type PrinterService struct {
	registry *registry.Registry
	monitor  *health.Monitor
	logger   *zap.Logger
}

// NewPrinterService creates the service over a registry and health monitor.
func NewPrinterService(reg *registry.Registry, monitor *health.Monitor, logger *zap.Logger) *PrinterService {
	return &PrinterService{
		registry: reg,
		monitor:  monitor,
		logger:   logger.With(zap.String("component", "service")),
	}
}

// RegisterPrinters pre-creates drivers for the configured printers so the
// health monitor sees them before the first print job arrives. Connections
// are still made lazily.
func (s *PrinterService) RegisterPrinters(configs []model.DeviceConfig) error {
	for _, cfg := range configs {
		if _, err := s.registry.GetOrCreate(cfg); err != nil {
			return fmt.Errorf("failed to register printer %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// PrintReceipt prints a complete fiscal receipt: open, items, payments,
// close. Fail-safe behavior on hardware faults follows the device config.
func (s *PrinterService) PrintReceipt(ctx context.Context, cfg model.DeviceConfig, items []model.ReceiptItem, payments []model.ReceiptPayment) (*printer.PrintResult, error) {
	operationID := uuid.New().String()
	logger := s.logger.With(
		zap.String("operation_id", operationID),
		zap.String("printer", cfg.Name),
	)

	drv, err := s.registry.Fiscal(cfg)
	if err != nil {
		return nil, err
	}

	if err := s.connect(ctx, drv); err != nil {
		if cfg.FailSafe && printer.IsFailSafeSuppressible(err) {
			logger.Warn("Fail-safe suppressed fiscal connect failure", zap.Error(err))
			return &printer.PrintResult{
				Success:           true,
				FailSafeTriggered: true,
				Message:           fmt.Sprintf("fail-safe: %v", err),
				Timestamp:         time.Now(),
			}, nil
		}
		return nil, err
	}

	result, err := drv.PrintReceipt(ctx, items, payments)
	if err != nil {
		logger.Error("Fiscal receipt print failed", zap.Error(err))
		return nil, err
	}

	logger.Info("Fiscal receipt printed",
		zap.Int("receipt_number", result.ReceiptNumber),
		zap.Bool("fail_safe_triggered", result.FailSafeTriggered),
	)
	return result, nil
}

// ExecuteZReport runs the day-end fiscal closing.
func (s *PrinterService) ExecuteZReport(ctx context.Context, cfg model.DeviceConfig) (*printer.ZReportResult, error) {
	operationID := uuid.New().String()

	drv, err := s.registry.Fiscal(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.connect(ctx, drv); err != nil {
		return nil, err
	}

	if err := drv.ExecuteZReport(ctx); err != nil {
		s.logger.Error("Z report failed",
			zap.String("operation_id", operationID),
			zap.String("printer", cfg.Name),
			zap.Error(err),
		)
		return nil, err
	}

	return &printer.ZReportResult{
		Success:   true,
		Message:   "fiscal day closed",
		Timestamp: time.Now(),
	}, nil
}

// PrintComanda prints a kitchen/bar ticket. Hardware faults are reported
// as an unsuccessful result rather than an error: a dead kitchen printer
// must not block the order flow. Validation and protocol errors surface.
func (s *PrinterService) PrintComanda(ctx context.Context, cfg model.DeviceConfig, job model.TicketJob, opts printer.TicketOptions) (*printer.TicketResult, error) {
	operationID := uuid.New().String()

	drv, err := s.registry.Ticket(cfg)
	if err != nil {
		return nil, err
	}

	result, err := drv.PrintComanda(ctx, job, opts)
	if err != nil {
		if printer.IsFailSafeSuppressible(err) {
			s.logger.Warn("Comanda print failed on hardware, order flow continues",
				zap.String("operation_id", operationID),
				zap.String("printer", cfg.Name),
				zap.Error(err),
			)
			return &printer.TicketResult{
				Success:   false,
				Message:   err.Error(),
				Timestamp: time.Now(),
			}, nil
		}
		return nil, err
	}
	return result, nil
}

// GetStatus polls one printer immediately and returns its snapshot.
func (s *PrinterService) GetStatus(ctx context.Context, cfg model.DeviceConfig) (model.StatusSnapshot, error) {
	drv, err := s.registry.GetOrCreate(cfg)
	if err != nil {
		return model.StatusSnapshot{}, err
	}

	if !drv.IsConnected() {
		if err := drv.Connect(ctx); err != nil {
			// Offline is a valid answer for a status query.
			s.logger.Debug("Printer unreachable during status query",
				zap.String("printer", cfg.Name),
				zap.Error(err),
			)
		}
	}

	return s.monitor.CheckNow(ctx, cfg.Identity())
}

// Snapshots returns the health monitor's current view of all printers.
func (s *PrinterService) Snapshots() map[model.DeviceIdentity]model.StatusSnapshot {
	return s.monitor.Snapshots()
}

func (s *PrinterService) connect(ctx context.Context, drv printer.Driver) error {
	if drv.IsConnected() {
		return nil
	}
	return drv.Connect(ctx)
}
