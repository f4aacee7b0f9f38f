// pkg/printer/interfaces.go
package printer

import (
	"context"

	"printer-service/internal/model"
)

// Driver is the common surface of both printer adapters. Implementations
// guard their transport with an exclusive lock: no two operations may
// interleave bytes on the same physical connection, status polls included.
type Driver interface {
	// Connection management
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	// Identity
	Kind() model.ProtocolKind
	Config() model.DeviceConfig

	// Health
	GetStatus(ctx context.Context) (*DeviceStatus, error)

	// Cleanup
	Close() error
}

// FiscalDriver drives the SF20 fiscal printer and enforces its receipt
// lifecycle state machine.
type FiscalDriver interface {
	Driver

	// Lifecycle operations
	OpenReceipt(ctx context.Context) error
	AddItem(ctx context.Context, item model.ReceiptItem) error
	ProcessPayment(ctx context.Context, payment model.ReceiptPayment) error
	CloseReceipt(ctx context.Context) (int, error)
	CancelReceipt(ctx context.Context) error
	ExecuteZReport(ctx context.Context) error

	// PrintReceipt runs the full open -> items -> payments -> close cycle,
	// applying the device's fail-safe policy to hardware faults.
	PrintReceipt(ctx context.Context, items []model.ReceiptItem, payments []model.ReceiptPayment) (*PrintResult, error)
}

// TicketDriver drives the stateless ESC/POS kitchen/bar ticket printer.
type TicketDriver interface {
	Driver

	PrintComanda(ctx context.Context, job model.TicketJob, opts TicketOptions) (*TicketResult, error)
	PrintText(ctx context.Context, text string, opts TextOptions) error
	CutPaper(ctx context.Context, partial bool) error
	OpenDrawer(ctx context.Context) error
	LineFeed(ctx context.Context, lines int) error
}
