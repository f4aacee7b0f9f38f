// internal/driver/fiscal/commands.go
package fiscal

// Frame bytes of the SF20 wire protocol. Every command is framed
// HEADER + CMD(ESC opcode) + payload + EOT; every response ends with EOT.
const (
	ESC byte = 0x1B
	EOT byte = 0x04
	ACK byte = 0x06
	NAK byte = 0x15
)

// SF20_COMMANDS contains all SF20 fiscal command opcodes
var SF20_COMMANDS = struct {
	INIT    byte
	STATUS  byte
	OPEN    byte
	ITEM    byte
	PAYMENT byte
	CLOSE   byte
	CANCEL  byte
	ZREPORT byte
}{
	INIT:    0x40, // ESC @
	STATUS:  0x6E, // ESC n
	OPEN:    0x47, // ESC G
	ITEM:    0x4A, // ESC J
	PAYMENT: 0x50, // ESC P
	CLOSE:   0x43, // ESC C
	CANCEL:  0x56, // ESC V
	ZREPORT: 0x5A, // ESC Z
}

// Status response state byte bits
const (
	statusBitReady       byte = 0x01
	statusBitReceiptOpen byte = 0x02
	statusBitZRequired   byte = 0x04
	statusBitPaperLow    byte = 0x08
	statusBitPaperOut    byte = 0x10
	statusBitDeviceError byte = 0x40
)

// PAYMENT_CODES maps payment type names to their wire codes
var PAYMENT_CODES = map[string]byte{
	"cash":  0x01,
	"card":  0x02,
	"check": 0x03,
	"other": 0x04,
}

var frameHeader = []byte{ESC, 0x40}

// buildFrame assembles a complete SF20 command frame.
func buildFrame(opcode byte, payload []byte) []byte {
	frame := make([]byte, 0, len(frameHeader)+2+len(payload)+1)
	frame = append(frame, frameHeader...)
	frame = append(frame, ESC, opcode)
	frame = append(frame, payload...)
	frame = append(frame, EOT)
	return frame
}
