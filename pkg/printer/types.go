// pkg/printer/types.go
package printer

import (
	"time"

	"printer-service/internal/model"
)

// DeviceStatus is the decoded result of a device status query. The health
// monitor folds it into a model.StatusSnapshot together with timing and
// failure-counter data.
type DeviceStatus struct {
	Status        model.PrinterStatus `json:"status"`
	FiscalState   model.FiscalState   `json:"fiscal_state,omitempty"`
	Ready         bool                `json:"ready"`
	Offline       bool                `json:"offline"`
	ErrorCode     byte                `json:"error_code,omitempty"`
	PaperStatus   model.PaperStatus   `json:"paper_status,omitempty"`
	ZReportDue    bool                `json:"z_report_due,omitempty"`
	ReceiptsToday int                 `json:"receipts_today"`
}

// PrintResult is the outcome of the composite fiscal print-receipt path.
type PrintResult struct {
	Success           bool      `json:"success"`
	ReceiptNumber     int       `json:"receipt_number,omitempty"`
	FailSafeTriggered bool      `json:"fail_safe_triggered,omitempty"`
	Message           string    `json:"message,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// ZReportResult is the outcome of a day-end report.
type ZReportResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TicketResult is the outcome of a comanda print. Ticket failures are
// non-fatal by convention; the result carries the classification and a
// human-readable message, nothing more.
type TicketResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TicketOptions overrides the configured cut/drawer behavior for one job.
// Nil fields fall back to the device configuration.
type TicketOptions struct {
	AutoCut    *bool `json:"auto_cut,omitempty"`
	OpenDrawer *bool `json:"open_drawer,omitempty"`
}

// TextAlign selects ESC/POS text alignment.
type TextAlign string

const (
	AlignLeft   TextAlign = "LEFT"
	AlignCenter TextAlign = "CENTER"
	AlignRight  TextAlign = "RIGHT"
)

// TextOptions controls formatting for ad hoc text printing.
type TextOptions struct {
	Align     TextAlign `json:"align,omitempty"`
	Bold      bool      `json:"bold,omitempty"`
	Underline bool      `json:"underline,omitempty"`
}
