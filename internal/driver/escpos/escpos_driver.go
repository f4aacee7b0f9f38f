// internal/driver/escpos/escpos_driver.go
package escpos

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/internal/protocol"
	"printer-service/internal/utils"
	"printer-service/pkg/printer"
)

// Driver implements printer.TicketDriver for ESC/POS comanda printers. The
// device is stateless: every job is a self-contained byte sequence and no
// lifecycle is tracked. The mutex only prevents two jobs from interleaving
// bytes on the wire.
type Driver struct {
	config    model.DeviceConfig
	transport protocol.Transport
	logger    *utils.DeviceLogger

	mutex     sync.Mutex
	connected bool
}

// NewDriver creates an ESC/POS ticket driver over the given transport.
func NewDriver(config model.DeviceConfig, transport protocol.Transport, logger *zap.Logger) *Driver {
	return &Driver{
		config:    config,
		transport: transport,
		logger:    utils.NewDeviceLogger(logger, config.Name, config.Addr(), string(config.Protocol)),
	}
}

// Connect establishes the TCP connection and resets the printer.
func (d *Driver) Connect(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.connected && d.transport.IsConnected() {
		return nil
	}

	if err := d.transport.Connect(ctx); err != nil {
		d.logger.LogConnection("connect", false, err)
		return err
	}

	if err := d.transport.Send(ctx, ESC_POS_COMMANDS.INITIALIZE); err != nil {
		d.transport.Close()
		d.logger.LogConnection("connect", false, err)
		return fmt.Errorf("failed to initialize ticket printer: %w", err)
	}

	d.connected = true
	d.logger.LogConnection("connect", true, nil)
	return nil
}

// Disconnect closes the connection.
func (d *Driver) Disconnect(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.connected {
		return nil
	}

	err := d.transport.Close()
	d.connected = false
	d.logger.LogConnection("disconnect", err == nil, err)
	return err
}

func (d *Driver) IsConnected() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.connected && d.transport.IsConnected()
}

func (d *Driver) Kind() model.ProtocolKind { return model.ProtocolTicket }

func (d *Driver) Config() model.DeviceConfig { return d.config }

func (d *Driver) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.connected = false
	return d.transport.Close()
}

// GetStatus queries the printer with DLE EOT 1 and decodes the status byte.
func (d *Driver) GetStatus(ctx context.Context) (*printer.DeviceStatus, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.ensureConnected(ctx); err != nil {
		return nil, err
	}
	if err := d.transport.Send(ctx, ESC_POS_COMMANDS.STATUS_REQUEST); err != nil {
		return nil, err
	}

	resp, err := d.transport.Receive(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, &printer.ProtocolError{Reason: "empty status response"}
	}

	statusByte := resp[0]
	status := &printer.DeviceStatus{
		Status:  model.PrinterStatusOK,
		Ready:   true,
		Offline: statusByte&statusBitOffline != 0,
	}
	switch {
	case statusByte&statusBitError != 0:
		status.Status = model.PrinterStatusError
		status.Ready = false
	case status.Offline:
		status.Status = model.PrinterStatusOffline
		status.Ready = false
	}
	return status, nil
}

// PrintComanda prints one kitchen/bar ticket. Cut and drawer kick follow
// the device configuration unless overridden per job.
func (d *Driver) PrintComanda(ctx context.Context, job model.TicketJob, opts printer.TicketOptions) (*printer.TicketResult, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	operationID := uuid.New().String()
	startTime := time.Now()

	if job.OrderNumber == "" {
		return nil, &printer.ValidationError{Field: "order_number", Reason: "must not be empty"}
	}
	if len(job.Items) == 0 {
		return nil, &printer.ValidationError{Field: "items", Reason: "ticket requires at least one item"}
	}
	for i, item := range job.Items {
		if item.Description == "" {
			return nil, &printer.ValidationError{Field: "description", Reason: fmt.Sprintf("item %d: must not be empty", i)}
		}
		if !item.Quantity.IsPositive() {
			return nil, &printer.ValidationError{Field: "quantity", Reason: fmt.Sprintf("item %d: must be positive", i)}
		}
	}

	err := d.printJob(ctx, job, opts)
	d.logger.LogOperation("print_comanda", operationID, time.Since(startTime), err == nil, err)
	if err != nil {
		return nil, err
	}

	return &printer.TicketResult{
		Success:   true,
		Message:   fmt.Sprintf("comanda %s printed", job.OrderNumber),
		Timestamp: time.Now(),
	}, nil
}

func (d *Driver) printJob(ctx context.Context, job model.TicketJob, opts printer.TicketOptions) error {
	if err := d.ensureConnected(ctx); err != nil {
		return err
	}

	if err := d.transport.Send(ctx, buildComanda(job, d.config.TicketWidth)); err != nil {
		return err
	}

	cut := d.config.AutoCut
	if opts.AutoCut != nil {
		cut = *opts.AutoCut
	}
	if cut {
		if err := d.transport.Send(ctx, ESC_POS_COMMANDS.CUT_PARTIAL); err != nil {
			return err
		}
	}

	drawer := d.config.AutoOpenDrawer
	if opts.OpenDrawer != nil {
		drawer = *opts.OpenDrawer
	}
	if drawer {
		if err := d.transport.Send(ctx, ESC_POS_COMMANDS.DRAWER_KICK); err != nil {
			return err
		}
	}
	return nil
}

// PrintText prints a single formatted text block.
func (d *Driver) PrintText(ctx context.Context, text string, opts printer.TextOptions) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if text == "" {
		return &printer.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if err := d.ensureConnected(ctx); err != nil {
		return err
	}

	var align []byte
	switch opts.Align {
	case printer.AlignCenter:
		align = ESC_POS_COMMANDS.ALIGN_CENTER
	case printer.AlignRight:
		align = ESC_POS_COMMANDS.ALIGN_RIGHT
	default:
		align = ESC_POS_COMMANDS.ALIGN_LEFT
	}

	return d.transport.Send(ctx, buildText(text, align, opts.Bold, opts.Underline))
}

// CutPaper cuts the paper, partially or fully.
func (d *Driver) CutPaper(ctx context.Context, partial bool) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.ensureConnected(ctx); err != nil {
		return err
	}
	if partial {
		return d.transport.Send(ctx, ESC_POS_COMMANDS.CUT_PARTIAL)
	}
	return d.transport.Send(ctx, ESC_POS_COMMANDS.CUT_FULL)
}

// OpenDrawer fires the cash drawer kick pulse.
func (d *Driver) OpenDrawer(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.ensureConnected(ctx); err != nil {
		return err
	}
	return d.transport.Send(ctx, ESC_POS_COMMANDS.DRAWER_KICK)
}

// LineFeed advances the paper by the given number of lines.
func (d *Driver) LineFeed(ctx context.Context, lines int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if lines < 1 || lines > 255 {
		return &printer.ValidationError{Field: "lines", Reason: "must be between 1 and 255"}
	}
	if err := d.ensureConnected(ctx); err != nil {
		return err
	}

	cmd := append([]byte{}, ESC_POS_COMMANDS.FEED_LINES...)
	cmd = append(cmd, byte(lines))
	return d.transport.Send(ctx, cmd)
}

// ensureConnected reconnects a dropped or broken connection before a job.
// The printer is stateless, so a fresh connection is always safe.
func (d *Driver) ensureConnected(ctx context.Context) error {
	if d.connected && d.transport.IsConnected() {
		return nil
	}

	d.logger.Warn("Ticket printer not connected, reconnecting", zap.Bool("was_connected", d.connected))
	d.transport.Close()
	if err := d.transport.Connect(ctx); err != nil {
		d.connected = false
		return err
	}
	d.connected = true
	return d.transport.Send(ctx, ESC_POS_COMMANDS.INITIALIZE)
}
