// internal/registry/registry.go
package registry

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"printer-service/internal/driver/escpos"
	"printer-service/internal/driver/fiscal"
	"printer-service/internal/model"
	"printer-service/internal/protocol"
	"printer-service/pkg/printer"
)

// Registry caches one driver per physical device, keyed by identity
// (host, port, protocol). Creation never dials, so holding the single
// mutex across it is cheap and makes creation single-flight: concurrent
// callers for the same identity always receive the same driver.
type Registry struct {
	logger *zap.Logger

	mutex   sync.Mutex
	drivers map[model.DeviceIdentity]printer.Driver
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger:  logger.With(zap.String("component", "registry")),
		drivers: make(map[model.DeviceIdentity]printer.Driver),
	}
}

// GetOrCreate returns the cached driver for the device identity, building
// it on first use. The config of the first caller wins; changing a device's
// settings requires Invalidate first.
func (r *Registry) GetOrCreate(cfg model.DeviceConfig) (printer.Driver, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	identity := cfg.Identity()
	if drv, ok := r.drivers[identity]; ok {
		return drv, nil
	}

	drv, err := r.build(cfg)
	if err != nil {
		return nil, err
	}

	r.drivers[identity] = drv
	r.logger.Info("Driver registered",
		zap.String("identity", identity.String()),
		zap.String("name", cfg.Name),
	)
	return drv, nil
}

func (r *Registry) build(cfg model.DeviceConfig) (printer.Driver, error) {
	transport := protocol.NewTCPConnection(cfg.Addr(), cfg.Timeout, r.logger)

	switch cfg.Protocol {
	case model.ProtocolFiscal:
		return fiscal.NewDriver(cfg, transport, r.logger), nil
	case model.ProtocolTicket:
		return escpos.NewDriver(cfg, transport, r.logger), nil
	default:
		return nil, fmt.Errorf("unsupported printer protocol: %s", cfg.Protocol)
	}
}

// Fiscal returns the fiscal driver for the config, creating it if needed.
func (r *Registry) Fiscal(cfg model.DeviceConfig) (printer.FiscalDriver, error) {
	drv, err := r.GetOrCreate(cfg)
	if err != nil {
		return nil, err
	}
	fd, ok := drv.(printer.FiscalDriver)
	if !ok {
		return nil, fmt.Errorf("driver for %s is not a fiscal printer", cfg.Identity())
	}
	return fd, nil
}

// Ticket returns the ticket driver for the config, creating it if needed.
func (r *Registry) Ticket(cfg model.DeviceConfig) (printer.TicketDriver, error) {
	drv, err := r.GetOrCreate(cfg)
	if err != nil {
		return nil, err
	}
	td, ok := drv.(printer.TicketDriver)
	if !ok {
		return nil, fmt.Errorf("driver for %s is not a ticket printer", cfg.Identity())
	}
	return td, nil
}

// Get returns the cached driver for an identity without creating one.
func (r *Registry) Get(identity model.DeviceIdentity) (printer.Driver, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	drv, ok := r.drivers[identity]
	return drv, ok
}

// Invalidate evicts a driver from the cache and closes its connection. The
// next GetOrCreate for the identity builds a fresh driver.
func (r *Registry) Invalidate(identity model.DeviceIdentity) {
	r.mutex.Lock()
	drv, ok := r.drivers[identity]
	if ok {
		delete(r.drivers, identity)
	}
	r.mutex.Unlock()

	if !ok {
		return
	}
	if err := drv.Close(); err != nil {
		r.logger.Warn("Error closing invalidated driver",
			zap.String("identity", identity.String()),
			zap.Error(err),
		)
	}
	r.logger.Info("Driver invalidated", zap.String("identity", identity.String()))
}

// List returns all cached drivers.
func (r *Registry) List() []printer.Driver {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	drivers := make([]printer.Driver, 0, len(r.drivers))
	for _, drv := range r.drivers {
		drivers = append(drivers, drv)
	}
	return drivers
}

// DisconnectAll closes every cached driver. Used at shutdown.
func (r *Registry) DisconnectAll(ctx context.Context) {
	r.mutex.Lock()
	drivers := make(map[model.DeviceIdentity]printer.Driver, len(r.drivers))
	for id, drv := range r.drivers {
		drivers[id] = drv
	}
	r.drivers = make(map[model.DeviceIdentity]printer.Driver)
	r.mutex.Unlock()

	for id, drv := range drivers {
		if err := drv.Disconnect(ctx); err != nil {
			r.logger.Warn("Error disconnecting driver",
				zap.String("identity", id.String()),
				zap.Error(err),
			)
		}
	}
}
