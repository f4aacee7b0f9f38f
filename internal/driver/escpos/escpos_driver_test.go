// internal/driver/escpos/escpos_driver_test.go
package escpos

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/internal/protocol"
	"printer-service/pkg/printer"
)

// fakeTransport records sent bytes and serves a fixed status byte.
type fakeTransport struct {
	sent       [][]byte
	statusByte byte
	sendErr    error
	recvErr    error
	connected  bool
	connects   int
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.connected = true
	f.connects++
	return nil
}

func (f *fakeTransport) Close() error {
	f.connected = false
	return nil
}

func (f *fakeTransport) IsConnected() bool { return f.connected }
func (f *fakeTransport) Broken() bool      { return false }

func (f *fakeTransport) Send(ctx context.Context, data []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte{}, data...))
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context, maxBytes int) ([]byte, error) {
	if f.recvErr != nil {
		return nil, f.recvErr
	}
	return []byte{f.statusByte}, nil
}

func (f *fakeTransport) ReceiveUntil(ctx context.Context, terminator byte, maxBytes int) ([]byte, error) {
	return f.Receive(ctx, maxBytes)
}

func (f *fakeTransport) Stats() protocol.ConnStats { return protocol.ConnStats{} }

func ticketConfig() model.DeviceConfig {
	return model.DeviceConfig{
		Name:        "cucina",
		Host:        "192.168.1.60",
		Port:        9100,
		Timeout:     time.Second,
		Protocol:    model.ProtocolTicket,
		TicketWidth: 32,
		AutoCut:     true,
	}
}

func newTestDriver(t *testing.T, cfg model.DeviceConfig) (*Driver, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{}
	drv := NewDriver(cfg, transport, zap.NewNop())
	require.NoError(t, drv.Connect(context.Background()))
	transport.sent = nil // drop the init sequence
	return drv, transport
}

func testJob() model.TicketJob {
	return model.TicketJob{
		OrderNumber: "17",
		Items: []model.TicketItem{
			{Description: "Pizza margherita", Quantity: decimal.NewFromInt(2)},
		},
	}
}

func TestPrintComandaSendsDocumentAndCut(t *testing.T) {
	drv, transport := newTestDriver(t, ticketConfig())

	result, err := drv.PrintComanda(context.Background(), testJob(), printer.TicketOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Len(t, transport.sent, 2)
	assert.Equal(t, buildComanda(testJob(), 32), transport.sent[0])
	assert.Equal(t, ESC_POS_COMMANDS.CUT_PARTIAL, transport.sent[1])
}

func TestPrintComandaOptionsOverrideConfig(t *testing.T) {
	drv, transport := newTestDriver(t, ticketConfig())

	noCut := false
	drawer := true
	_, err := drv.PrintComanda(context.Background(), testJob(), printer.TicketOptions{
		AutoCut:    &noCut,
		OpenDrawer: &drawer,
	})
	require.NoError(t, err)

	require.Len(t, transport.sent, 2)
	assert.Equal(t, buildComanda(testJob(), 32), transport.sent[0])
	assert.Equal(t, ESC_POS_COMMANDS.DRAWER_KICK, transport.sent[1])
}

func TestPrintComandaValidation(t *testing.T) {
	drv, transport := newTestDriver(t, ticketConfig())
	ctx := context.Background()

	var valErr *printer.ValidationError

	job := testJob()
	job.OrderNumber = ""
	_, err := drv.PrintComanda(ctx, job, printer.TicketOptions{})
	require.ErrorAs(t, err, &valErr)

	job = testJob()
	job.Items = nil
	_, err = drv.PrintComanda(ctx, job, printer.TicketOptions{})
	require.ErrorAs(t, err, &valErr)

	job = testJob()
	job.Items[0].Quantity = decimal.Zero
	_, err = drv.PrintComanda(ctx, job, printer.TicketOptions{})
	require.ErrorAs(t, err, &valErr)

	assert.Empty(t, transport.sent)
}

func TestPrintComandaSurfacesTransportError(t *testing.T) {
	drv, transport := newTestDriver(t, ticketConfig())
	transport.sendErr = &printer.ConnectionError{Addr: "192.168.1.60:9100"}

	result, err := drv.PrintComanda(context.Background(), testJob(), printer.TicketOptions{})
	require.Error(t, err)
	assert.Nil(t, result)

	var connErr *printer.ConnectionError
	require.ErrorAs(t, err, &connErr)
}

func TestReconnectBeforeJobWhenDisconnected(t *testing.T) {
	drv, transport := newTestDriver(t, ticketConfig())
	transport.Close()

	_, err := drv.PrintComanda(context.Background(), testJob(), printer.TicketOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, transport.connects)
	// Reconnect re-initializes the printer before the document.
	assert.Equal(t, ESC_POS_COMMANDS.INITIALIZE, transport.sent[0])
}

func TestGetStatusDecoding(t *testing.T) {
	tests := []struct {
		name       string
		statusByte byte
		expected   model.PrinterStatus
		ready      bool
	}{
		{"ok", 0x00, model.PrinterStatusOK, true},
		{"offline", 0x08, model.PrinterStatusOffline, false},
		{"error", 0x40, model.PrinterStatusError, false},
		{"error wins over offline", 0x48, model.PrinterStatusError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv, transport := newTestDriver(t, ticketConfig())
			transport.statusByte = tt.statusByte

			status, err := drv.GetStatus(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, status.Status)
			assert.Equal(t, tt.ready, status.Ready)
		})
	}
}

func TestPrintText(t *testing.T) {
	drv, transport := newTestDriver(t, ticketConfig())

	err := drv.PrintText(context.Background(), "TOTALE", printer.TextOptions{
		Align: printer.AlignRight,
		Bold:  true,
	})
	require.NoError(t, err)

	require.Len(t, transport.sent, 1)
	assert.Equal(t, buildText("TOTALE", ESC_POS_COMMANDS.ALIGN_RIGHT, true, false), transport.sent[0])
}

func TestPrintTextRejectsEmpty(t *testing.T) {
	drv, _ := newTestDriver(t, ticketConfig())

	var valErr *printer.ValidationError
	require.ErrorAs(t, drv.PrintText(context.Background(), "", printer.TextOptions{}), &valErr)
}

func TestCutPaper(t *testing.T) {
	drv, transport := newTestDriver(t, ticketConfig())
	ctx := context.Background()

	require.NoError(t, drv.CutPaper(ctx, true))
	require.NoError(t, drv.CutPaper(ctx, false))

	assert.Equal(t, ESC_POS_COMMANDS.CUT_PARTIAL, transport.sent[0])
	assert.Equal(t, ESC_POS_COMMANDS.CUT_FULL, transport.sent[1])
}

func TestOpenDrawer(t *testing.T) {
	drv, transport := newTestDriver(t, ticketConfig())

	require.NoError(t, drv.OpenDrawer(context.Background()))
	assert.Equal(t, ESC_POS_COMMANDS.DRAWER_KICK, transport.sent[0])
}

func TestLineFeed(t *testing.T) {
	drv, transport := newTestDriver(t, ticketConfig())
	ctx := context.Background()

	require.NoError(t, drv.LineFeed(ctx, 3))
	assert.Equal(t, []byte{0x1B, 0x64, 0x03}, transport.sent[0])

	var valErr *printer.ValidationError
	require.ErrorAs(t, drv.LineFeed(ctx, 0), &valErr)
	require.ErrorAs(t, drv.LineFeed(ctx, 300), &valErr)
}
