// internal/driver/fiscal/fiscal_driver.go
package fiscal

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/internal/protocol"
	"printer-service/internal/utils"
	"printer-service/pkg/printer"
)

const maxResponseBytes = 512

// session accumulates the data of the receipt currently being built. It is
// reset on open, close, cancel and on any recovery that finds no open
// receipt on the device.
type session struct {
	itemCount int
	subtotal  decimal.Decimal
	paid      decimal.Decimal
}

func newSession() session {
	return session{subtotal: decimal.Zero, paid: decimal.Zero}
}

// Driver implements printer.FiscalDriver for SF20 fiscal printers. A single
// mutex serializes every operation, status queries included: the device
// cannot interleave command frames on one connection.
type Driver struct {
	config    model.DeviceConfig
	transport protocol.Transport
	logger    *utils.DeviceLogger

	mutex             sync.Mutex
	connected         bool
	state             model.FiscalState
	session           session
	receiptsToday     int
	lastReceiptNumber int
}

// NewDriver creates an SF20 fiscal driver over the given transport. The
// transport starts disconnected; nothing is dialed until Connect.
func NewDriver(config model.DeviceConfig, transport protocol.Transport, logger *zap.Logger) *Driver {
	return &Driver{
		config:    config,
		transport: transport,
		logger:    utils.NewDeviceLogger(logger, config.Name, config.Addr(), string(config.Protocol)),
		state:     model.FiscalStateInit,
		session:   newSession(),
	}
}

// Connect establishes the TCP connection and initializes the device.
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

	if _, err := d.rawExchange(ctx, SF20_COMMANDS.INIT, nil); err != nil {
		d.transport.Close()
		d.logger.LogConnection("connect", false, err)
		return fmt.Errorf("failed to initialize fiscal printer: %w", err)
	}

	d.connected = true
	d.state = model.FiscalStateInit
	d.session = newSession()

	d.logger.LogConnection("connect", true, nil)
	return nil
}

// Disconnect closes the connection. Cached lifecycle state is kept so a
// reconnect can compare it against the device's reported state.
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

func (d *Driver) Kind() model.ProtocolKind { return model.ProtocolFiscal }

func (d *Driver) Config() model.DeviceConfig { return d.config }

func (d *Driver) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.connected = false
	return d.transport.Close()
}

// State returns the cached lifecycle state.
func (d *Driver) State() model.FiscalState {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.state
}

// GetStatus queries the device and decodes the state bitmask. The cached
// lifecycle state is resynchronized with what the device reports.
func (d *Driver) GetStatus(ctx context.Context) (*printer.DeviceStatus, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var status *printer.DeviceStatus
	err := d.logged(opStatus, func() error {
		var err error
		status, err = d.doGetStatus(ctx)
		return err
	})
	return status, err
}

// OpenReceipt starts a new fiscal receipt.
func (d *Driver) OpenReceipt(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.logged(opOpenReceipt, func() error { return d.doOpenReceipt(ctx) })
}

// AddItem registers one sale line on the open receipt.
func (d *Driver) AddItem(ctx context.Context, item model.ReceiptItem) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.logged(opAddItem, func() error { return d.doAddItem(ctx, item) })
}

// ProcessPayment registers one payment on the open receipt.
func (d *Driver) ProcessPayment(ctx context.Context, payment model.ReceiptPayment) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.logged(opProcessPayment, func() error { return d.doProcessPayment(ctx, payment) })
}

// CloseReceipt finalizes the open receipt and returns its fiscal receipt
// number.
func (d *Driver) CloseReceipt(ctx context.Context) (int, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var number int
	err := d.logged(opCloseReceipt, func() error {
		var err error
		number, err = d.doCloseReceipt(ctx)
		return err
	})
	return number, err
}

// CancelReceipt voids the open receipt without registering it.
func (d *Driver) CancelReceipt(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.logged(opCancelReceipt, func() error { return d.doCancelReceipt(ctx) })
}

// ExecuteZReport runs the day-end fiscal closing.
func (d *Driver) ExecuteZReport(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.logged(opZReport, func() error { return d.doZReport(ctx) })
}

// PrintReceipt runs the full receipt cycle under one lock acquisition so no
// other operation can interleave with the open/item/payment/close sequence.
//
// With fail-safe enabled, hardware faults (connection, timeout, device NAK)
// are converted into a soft success so the sale flow is not blocked by the
// printer. State and validation errors always surface: they mean the caller
// built an illegal sequence.
func (d *Driver) PrintReceipt(ctx context.Context, items []model.ReceiptItem, payments []model.ReceiptPayment) (*printer.PrintResult, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	operationID := uuid.New().String()
	startTime := time.Now()

	if len(items) == 0 {
		return nil, &printer.ValidationError{Field: "items", Reason: "receipt requires at least one item"}
	}
	for i, item := range items {
		if err := d.validateItem(item); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	for i, payment := range payments {
		if err := d.validatePayment(payment); err != nil {
			return nil, fmt.Errorf("payment %d: %w", i, err)
		}
	}

	number, err := d.runReceiptSequence(ctx, items, payments)
	if err != nil {
		// Leave a half-built receipt voided rather than dangling.
		if d.state == model.FiscalStateReceiptOpen {
			if cancelErr := d.doCancelReceipt(ctx); cancelErr != nil {
				d.logger.Warn("Failed to cancel receipt after print failure", zap.Error(cancelErr))
				d.state = model.FiscalStateError
			}
		}

		if d.config.FailSafe && printer.IsFailSafeSuppressible(err) {
			d.logger.Warn("Fail-safe suppressed fiscal print failure",
				zap.String("operation_id", operationID),
				zap.Error(err),
			)
			d.logger.LogOperation("print_receipt", operationID, time.Since(startTime), true, nil)
			return &printer.PrintResult{
				Success:           true,
				FailSafeTriggered: true,
				Message:           fmt.Sprintf("fail-safe: %v", err),
				Timestamp:         time.Now(),
			}, nil
		}

		d.logger.LogOperation("print_receipt", operationID, time.Since(startTime), false, err)
		return nil, err
	}

	d.logger.LogOperation("print_receipt", operationID, time.Since(startTime), true, nil)
	return &printer.PrintResult{
		Success:       true,
		ReceiptNumber: number,
		Timestamp:     time.Now(),
	}, nil
}

func (d *Driver) runReceiptSequence(ctx context.Context, items []model.ReceiptItem, payments []model.ReceiptPayment) (int, error) {
	if err := d.doOpenReceipt(ctx); err != nil {
		return 0, err
	}
	for _, item := range items {
		if err := d.doAddItem(ctx, item); err != nil {
			return 0, err
		}
	}
	for _, payment := range payments {
		if err := d.doProcessPayment(ctx, payment); err != nil {
			return 0, err
		}
	}
	return d.doCloseReceipt(ctx)
}

// --- Internal operations. Callers hold d.mutex. ---

func (d *Driver) doOpenReceipt(ctx context.Context) error {
	if err := checkTransition(d.state, opOpenReceipt); err != nil {
		return err
	}

	if _, err := d.exchange(ctx, SF20_COMMANDS.OPEN, nil); err != nil {
		return err
	}

	d.state = model.FiscalStateReceiptOpen
	d.session = newSession()
	return nil
}

func (d *Driver) doAddItem(ctx context.Context, item model.ReceiptItem) error {
	if err := checkTransition(d.state, opAddItem); err != nil {
		return err
	}
	if err := d.validateItem(item); err != nil {
		return err
	}

	if _, err := d.exchange(ctx, SF20_COMMANDS.ITEM, encodeItem(item)); err != nil {
		return err
	}

	d.session.itemCount++
	d.session.subtotal = d.session.subtotal.Add(item.Total())
	return nil
}

func (d *Driver) doProcessPayment(ctx context.Context, payment model.ReceiptPayment) error {
	if err := checkTransition(d.state, opProcessPayment); err != nil {
		return err
	}
	if d.session.itemCount == 0 {
		return &printer.StateError{State: string(d.state), Op: "process_payment on empty receipt"}
	}
	if err := d.validatePayment(payment); err != nil {
		return err
	}

	if _, err := d.exchange(ctx, SF20_COMMANDS.PAYMENT, encodePayment(payment)); err != nil {
		return err
	}

	d.session.paid = d.session.paid.Add(payment.Amount)
	return nil
}

func (d *Driver) doCloseReceipt(ctx context.Context) (int, error) {
	if err := checkTransition(d.state, opCloseReceipt); err != nil {
		return 0, err
	}
	if d.session.itemCount == 0 {
		return 0, &printer.StateError{State: string(d.state), Op: "close_receipt on empty receipt"}
	}

	required := d.session.subtotal.Sub(d.config.PaymentTolerance)
	if d.session.paid.LessThan(required) {
		return 0, &printer.ValidationError{
			Field: "payments",
			Reason: fmt.Sprintf("total paid %s does not cover subtotal %s (tolerance %s)",
				d.session.paid, d.session.subtotal, d.config.PaymentTolerance),
		}
	}

	body, err := d.exchange(ctx, SF20_COMMANDS.CLOSE, nil)
	if err != nil {
		return 0, err
	}

	number, err := parseReceiptNumber(body)
	if err != nil {
		return 0, err
	}
	if d.lastReceiptNumber != 0 && number <= d.lastReceiptNumber {
		return 0, &printer.ProtocolError{
			Reason: fmt.Sprintf("receipt number %d not greater than previous %d", number, d.lastReceiptNumber),
			Raw:    body,
		}
	}

	d.lastReceiptNumber = number
	d.receiptsToday++
	d.state = model.FiscalStateReceiptClosed
	d.session = newSession()

	d.logger.Info("Fiscal receipt closed",
		zap.Int("receipt_number", number),
		zap.Int("receipts_today", d.receiptsToday),
	)
	return number, nil
}

func (d *Driver) doCancelReceipt(ctx context.Context) error {
	if err := checkTransition(d.state, opCancelReceipt); err != nil {
		return err
	}

	if _, err := d.exchange(ctx, SF20_COMMANDS.CANCEL, nil); err != nil {
		return err
	}

	d.state = model.FiscalStateReceiptClosed
	d.session = newSession()
	return nil
}

func (d *Driver) doZReport(ctx context.Context) error {
	if err := checkTransition(d.state, opZReport); err != nil {
		return err
	}

	if _, err := d.exchange(ctx, SF20_COMMANDS.ZREPORT, nil); err != nil {
		return err
	}

	d.state = model.FiscalStateInit
	d.receiptsToday = 0
	d.lastReceiptNumber = 0

	d.logger.Info("Z report executed, fiscal day closed")
	return nil
}

func (d *Driver) doGetStatus(ctx context.Context) (*printer.DeviceStatus, error) {
	body, err := d.exchange(ctx, SF20_COMMANDS.STATUS, nil)
	if err != nil {
		return nil, err
	}
	if len(body) < 2 {
		return nil, &printer.ProtocolError{Reason: "status response too short", Raw: body}
	}

	stateByte, errorCode := body[0], body[1]
	status := d.decodeStatus(stateByte, errorCode)
	d.resyncState(stateByte, errorCode)
	status.FiscalState = d.state
	return status, nil
}

func (d *Driver) decodeStatus(stateByte, errorCode byte) *printer.DeviceStatus {
	status := &printer.DeviceStatus{
		Status:        model.PrinterStatusOK,
		Ready:         stateByte&statusBitReady != 0,
		ErrorCode:     errorCode,
		PaperStatus:   model.PaperStatusOK,
		ZReportDue:    stateByte&statusBitZRequired != 0,
		ReceiptsToday: d.receiptsToday,
	}

	switch {
	case stateByte&statusBitDeviceError != 0 || errorCode != 0:
		status.Status = model.PrinterStatusError
	case stateByte&statusBitPaperOut != 0:
		status.Status = model.PrinterStatusError
		status.PaperStatus = model.PaperStatusOut
	case stateByte&statusBitPaperLow != 0:
		status.Status = model.PrinterStatusWarning
		status.PaperStatus = model.PaperStatusLow
	case stateByte&statusBitZRequired != 0:
		// Day closing due: the device refuses new receipts until a Z
		// report runs, so the printer is degraded but not faulted.
		status.Status = model.PrinterStatusWarning
	}
	return status
}

// resyncState reconciles the cached lifecycle state with what the device
// reports. The device is authoritative: a crashed session or a receipt left
// open across a reconnect is discovered here.
func (d *Driver) resyncState(stateByte, errorCode byte) {
	switch {
	case stateByte&statusBitDeviceError != 0 || errorCode != 0:
		d.state = model.FiscalStateError
	case stateByte&statusBitReceiptOpen != 0:
		if d.state != model.FiscalStateReceiptOpen {
			// Receipt open on the device but unknown to us: the session
			// data is gone, only cancel or recovery-close can follow.
			d.logger.Warn("Device reports open receipt not tracked by driver")
			d.state = model.FiscalStateReceiptOpen
			d.session = newSession()
		}
	case stateByte&statusBitZRequired != 0:
		d.state = model.FiscalStateZRequired
	default:
		if d.state == model.FiscalStateError || d.state == model.FiscalStateZRequired ||
			d.state == model.FiscalStateReceiptOpen {
			d.state = model.FiscalStateInit
			d.session = newSession()
		}
	}
}

// --- Wire exchange ---

// exchange performs one command/response cycle, retrying exactly once over
// a re-established connection when the first attempt times out.
func (d *Driver) exchange(ctx context.Context, opcode byte, payload []byte) ([]byte, error) {
	body, err := d.rawExchange(ctx, opcode, payload)
	if err == nil || !printer.IsRetryable(err) {
		return body, err
	}

	d.logger.Warn("Fiscal exchange timed out, retrying once over new connection",
		zap.Error(err),
	)
	if recoverErr := d.recoverConnection(ctx); recoverErr != nil {
		return nil, fmt.Errorf("recovery after timeout failed: %w", recoverErr)
	}
	return d.rawExchange(ctx, opcode, payload)
}

func (d *Driver) rawExchange(ctx context.Context, opcode byte, payload []byte) ([]byte, error) {
	if !d.transport.IsConnected() {
		return nil, &printer.ConnectionError{Addr: d.config.Addr(), Err: fmt.Errorf("not connected")}
	}

	if err := d.transport.Send(ctx, buildFrame(opcode, payload)); err != nil {
		return nil, err
	}

	resp, err := d.transport.ReceiveUntil(ctx, EOT, maxResponseBytes)
	if err != nil {
		return nil, err
	}
	return parseResponse(resp)
}

// recoverConnection tears down the poisoned connection, reconnects and
// resynchronizes the cached state from a fresh status query. The device's
// view wins: whatever the timed-out command did or did not do, the status
// bitmask tells us where the machine actually is.
func (d *Driver) recoverConnection(ctx context.Context) error {
	d.transport.Close()

	if err := d.transport.Connect(ctx); err != nil {
		d.connected = false
		return err
	}
	d.connected = true

	body, err := d.rawExchange(ctx, SF20_COMMANDS.STATUS, nil)
	if err != nil {
		return fmt.Errorf("status resync failed: %w", err)
	}
	if len(body) < 2 {
		return &printer.ProtocolError{Reason: "status response too short", Raw: body}
	}
	d.resyncState(body[0], body[1])
	return nil
}

// --- Validation ---

func (d *Driver) validateItem(item model.ReceiptItem) error {
	if item.Description == "" {
		return &printer.ValidationError{Field: "description", Reason: "must not be empty"}
	}
	if !item.Quantity.IsPositive() {
		return &printer.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if item.UnitPrice.IsNegative() {
		return &printer.ValidationError{Field: "unit_price", Reason: "must not be negative"}
	}
	if !d.config.HasTaxRate(item.TaxPercent) {
		return &printer.ValidationError{
			Field:  "tax_percent",
			Reason: fmt.Sprintf("%s is not a configured fiscal rate", item.TaxPercent),
		}
	}
	return nil
}

func (d *Driver) validatePayment(payment model.ReceiptPayment) error {
	if _, ok := PAYMENT_CODES[payment.Type]; !ok {
		return &printer.ValidationError{
			Field:  "payment_type",
			Reason: fmt.Sprintf("unknown type %q", payment.Type),
		}
	}
	if !payment.Amount.IsPositive() {
		return &printer.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return nil
}

// --- Helpers ---

func (d *Driver) logged(op fiscalOp, fn func() error) error {
	operationID := uuid.New().String()
	startTime := time.Now()
	err := fn()
	d.logger.LogOperation(string(op), operationID, time.Since(startTime), err == nil, err)
	return err
}

// parseResponse strips framing from a device response: ACK + body + EOT on
// success, NAK + error code on device fault.
func parseResponse(resp []byte) ([]byte, error) {
	if len(resp) < 2 || resp[len(resp)-1] != EOT {
		return nil, &printer.ProtocolError{Reason: "response not EOT-terminated", Raw: resp}
	}

	switch resp[0] {
	case ACK:
		return resp[1 : len(resp)-1], nil
	case NAK:
		if len(resp) < 3 {
			return nil, &printer.ProtocolError{Reason: "NAK without error code", Raw: resp}
		}
		return nil, &printer.DeviceError{Code: resp[1]}
	default:
		return nil, &printer.ProtocolError{
			Reason: fmt.Sprintf("unexpected response byte 0x%02X", resp[0]),
			Raw:    resp,
		}
	}
}

// parseReceiptNumber extracts the ASCII receipt number from a close
// response body.
func parseReceiptNumber(body []byte) (int, error) {
	digits := make([]byte, 0, len(body))
	for _, b := range body {
		if b >= '0' && b <= '9' {
			digits = append(digits, b)
		}
	}
	if len(digits) == 0 {
		return 0, &printer.ProtocolError{Reason: "close response carries no receipt number", Raw: body}
	}

	number, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0, &printer.ProtocolError{Reason: "unparseable receipt number", Raw: body}
	}
	return number, nil
}
