// internal/model/printer.go
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ProtocolKind identifies which wire protocol a printer speaks.
type ProtocolKind string

const (
	ProtocolFiscal ProtocolKind = "FISCAL"
	ProtocolTicket ProtocolKind = "TICKET"
)

// PrinterStatus represents the externally visible status of a printer.
type PrinterStatus string

const (
	PrinterStatusOK      PrinterStatus = "OK"
	PrinterStatusBusy    PrinterStatus = "BUSY"
	PrinterStatusError   PrinterStatus = "ERROR"
	PrinterStatusOffline PrinterStatus = "OFFLINE"
	PrinterStatusWarning PrinterStatus = "WARNING"
	PrinterStatusUnknown PrinterStatus = "UNKNOWN"
)

// FiscalState is the fiscal device's receipt lifecycle state.
type FiscalState string

const (
	FiscalStateInit          FiscalState = "INIT"
	FiscalStateReceiptOpen   FiscalState = "RECEIPT_OPEN"
	FiscalStateReceiptClosed FiscalState = "RECEIPT_CLOSED"
	FiscalStateZRequired     FiscalState = "Z_REQUIRED"
	FiscalStateError         FiscalState = "ERROR"
)

// PaperStatus reports the fiscal device's paper condition.
type PaperStatus string

const (
	PaperStatusOK      PaperStatus = "OK"
	PaperStatusLow     PaperStatus = "LOW"
	PaperStatusOut     PaperStatus = "OUT"
	PaperStatusUnknown PaperStatus = "UNKNOWN"
)

// DeviceConfig is the immutable per-printer configuration supplied by the
// configuration collaborator. A change to any identity field must produce a
// new adapter; adapters are never reconfigured in place.
type DeviceConfig struct {
	Name             string          `json:"name"`
	Host             string          `json:"host"`
	Port             int             `json:"port"`
	Timeout          time.Duration   `json:"timeout"`
	Protocol         ProtocolKind    `json:"protocol"`
	FailSafe         bool            `json:"fail_safe"`         // fiscal only
	TaxRates         []decimal.Decimal `json:"tax_rates"`       // fiscal only
	PaymentTolerance decimal.Decimal `json:"payment_tolerance"` // fiscal only
	TicketWidth      int             `json:"ticket_width"` // ticket only
	AutoCut          bool            `json:"auto_cut"`
	AutoOpenDrawer   bool            `json:"auto_open_drawer"`
}

// DeviceIdentity is the registry key deduplicating adapters: one live
// connection per physical device.
type DeviceIdentity struct {
	Host     string
	Port     int
	Protocol ProtocolKind
}

func (c DeviceConfig) Identity() DeviceIdentity {
	return DeviceIdentity{Host: c.Host, Port: c.Port, Protocol: c.Protocol}
}

func (c DeviceConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HasTaxRate reports whether the given VAT percentage is one of the
// device's configured fiscal rates.
func (c DeviceConfig) HasTaxRate(rate decimal.Decimal) bool {
	for _, r := range c.TaxRates {
		if r.Equal(rate) {
			return true
		}
	}
	return false
}

func (id DeviceIdentity) String() string {
	return fmt.Sprintf("%s/%s:%d", id.Protocol, id.Host, id.Port)
}

// StatusSnapshot is the health monitor's point-in-time view of one printer.
// It is rewritten wholesale on every poll and read-only everywhere else.
type StatusSnapshot struct {
	Status            PrinterStatus `json:"status"`
	FiscalState       FiscalState   `json:"fiscal_state,omitempty"`
	Ready             bool          `json:"ready"`
	ErrorCode         string        `json:"error_code,omitempty"`
	Message           string        `json:"message,omitempty"`
	ReceiptsToday     int           `json:"receipts_today"`
	ResponseTimeMS    float64       `json:"response_time_ms"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
	LastCheckedAt     time.Time     `json:"last_checked_at"`
}

// ReceiptItem is one sale line registered on an open fiscal receipt.
type ReceiptItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxPercent  decimal.Decimal `json:"tax_percent"`
}

// Total returns quantity x unit price.
func (i ReceiptItem) Total() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

// ReceiptPayment is one payment registered on an open fiscal receipt.
type ReceiptPayment struct {
	Type   string          `json:"type"` // cash, card, check, other
	Amount decimal.Decimal `json:"amount"`
}

// TicketItem is one order line on a kitchen/bar ticket.
type TicketItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Notes       string          `json:"notes,omitempty"`
}

// TicketJob is a transient comanda print job: built by the caller, consumed
// once, never retained.
type TicketJob struct {
	Header      string       `json:"header,omitempty"`
	OrderNumber string       `json:"order_number"`
	Table       string       `json:"table,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Items       []TicketItem `json:"items"`
	Footer      string       `json:"footer,omitempty"`
}
