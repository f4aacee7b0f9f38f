// internal/health/monitor.go
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/internal/registry"
	"printer-service/pkg/printer"
)

// Monitor polls every registered printer on a fixed interval and keeps a
// per-device StatusSnapshot. Snapshots are rewritten wholesale on each
// poll; only the consecutive error counter carries over between polls.
type Monitor struct {
	registry          *registry.Registry
	logger            *zap.Logger
	interval          time.Duration
	criticalThreshold int

	mutex     sync.RWMutex
	snapshots map[model.DeviceIdentity]model.StatusSnapshot

	runMutex sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewMonitor creates a monitor over the given registry.
func NewMonitor(reg *registry.Registry, interval time.Duration, criticalThreshold int, logger *zap.Logger) *Monitor {
	return &Monitor{
		registry:          reg,
		logger:            logger.With(zap.String("component", "health")),
		interval:          interval,
		criticalThreshold: criticalThreshold,
		snapshots:         make(map[model.DeviceIdentity]model.StatusSnapshot),
	}
}

// Start launches the polling loop. Starting an already-running monitor is
// a no-op. The first poll runs immediately.
func (m *Monitor) Start(ctx context.Context) {
	m.runMutex.Lock()
	defer m.runMutex.Unlock()

	if m.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(runCtx)
	m.logger.Info("Health monitor started", zap.Duration("interval", m.interval))
}

// Stop halts the polling loop and waits for it to finish. No poll runs
// after Stop returns.
func (m *Monitor) Stop() {
	m.runMutex.Lock()
	defer m.runMutex.Unlock()

	if m.cancel == nil {
		return
	}

	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil

	m.logger.Info("Health monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollAll(ctx)
		}
	}
}

func (m *Monitor) pollAll(ctx context.Context) {
	for _, drv := range m.registry.List() {
		if ctx.Err() != nil {
			return
		}
		m.poll(ctx, drv)
	}
}

func (m *Monitor) poll(ctx context.Context, drv printer.Driver) {
	identity := drv.Config().Identity()
	startTime := time.Now()

	status, err := drv.GetStatus(ctx)
	elapsed := time.Since(startTime)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	previous := m.snapshots[identity]
	snapshot := model.StatusSnapshot{
		ResponseTimeMS: float64(elapsed.Milliseconds()),
		LastCheckedAt:  time.Now(),
	}

	if err != nil {
		snapshot.Status = failureStatus(err)
		snapshot.Message = err.Error()
		snapshot.ConsecutiveErrors = previous.ConsecutiveErrors + 1
		snapshot.ReceiptsToday = previous.ReceiptsToday

		m.logger.Warn("Printer health check failed",
			zap.String("identity", identity.String()),
			zap.Int("consecutive_errors", snapshot.ConsecutiveErrors),
			zap.Error(err),
		)
	} else {
		snapshot.Status = status.Status
		snapshot.FiscalState = status.FiscalState
		snapshot.Ready = status.Ready
		snapshot.ReceiptsToday = status.ReceiptsToday
		if status.ErrorCode != 0 {
			snapshot.ErrorCode = fmt.Sprintf("0x%02X", status.ErrorCode)
		}
		snapshot.ConsecutiveErrors = 0
	}

	m.snapshots[identity] = snapshot
}

// failureStatus maps a status-check error to an external printer status.
// Only failures to reach the device mean OFFLINE; a NAK or a malformed
// response comes from a device that answered.
func failureStatus(err error) model.PrinterStatus {
	var connErr *printer.ConnectionError
	var timeoutErr *printer.TimeoutError
	if errors.As(err, &connErr) || errors.As(err, &timeoutErr) {
		return model.PrinterStatusOffline
	}
	return model.PrinterStatusError
}

// Snapshot returns the latest snapshot for one device.
func (m *Monitor) Snapshot(identity model.DeviceIdentity) (model.StatusSnapshot, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	snapshot, ok := m.snapshots[identity]
	return snapshot, ok
}

// Snapshots returns a copy of all snapshots.
func (m *Monitor) Snapshots() map[model.DeviceIdentity]model.StatusSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make(map[model.DeviceIdentity]model.StatusSnapshot, len(m.snapshots))
	for id, snapshot := range m.snapshots {
		out[id] = snapshot
	}
	return out
}

// IsCritical reports whether a device has failed enough consecutive health
// checks to be considered down.
func (m *Monitor) IsCritical(identity model.DeviceIdentity) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.snapshots[identity].ConsecutiveErrors >= m.criticalThreshold
}

// CheckNow polls one device immediately, outside the ticker schedule, and
// returns the resulting snapshot.
func (m *Monitor) CheckNow(ctx context.Context, identity model.DeviceIdentity) (model.StatusSnapshot, error) {
	drv, ok := m.registry.Get(identity)
	if !ok {
		return model.StatusSnapshot{}, fmt.Errorf("no driver registered for %s", identity)
	}

	m.poll(ctx, drv)

	snapshot, _ := m.Snapshot(identity)
	return snapshot, nil
}
