// internal/driver/escpos/commands.go
package escpos

// ESC_POS_COMMANDS contains the ESC/POS command definitions used by the
// ticket printer
var ESC_POS_COMMANDS = struct {
	// Basic commands
	INITIALIZE     []byte
	STATUS_REQUEST []byte

	// Text formatting
	TEXT_BOLD_ON       []byte
	TEXT_BOLD_OFF      []byte
	TEXT_UNDERLINE_ON  []byte
	TEXT_UNDERLINE_OFF []byte

	// Text size
	TEXT_SIZE_NORMAL      []byte
	TEXT_SIZE_DOUBLE_BOTH []byte

	// Text alignment
	ALIGN_LEFT   []byte
	ALIGN_CENTER []byte
	ALIGN_RIGHT  []byte

	// Paper handling
	LINE_FEED  []byte
	FEED_LINES []byte // + line count byte

	// Cutting
	CUT_FULL    []byte
	CUT_PARTIAL []byte

	// Cash drawer
	DRAWER_KICK []byte
}{
	// Basic commands
	INITIALIZE:     []byte{0x1B, 0x40},       // ESC @
	STATUS_REQUEST: []byte{0x10, 0x04, 0x01}, // DLE EOT 1

	// Text formatting
	TEXT_BOLD_ON:       []byte{0x1B, 0x45, 0x01}, // ESC E 1
	TEXT_BOLD_OFF:      []byte{0x1B, 0x45, 0x00}, // ESC E 0
	TEXT_UNDERLINE_ON:  []byte{0x1B, 0x2D, 0x01}, // ESC - 1
	TEXT_UNDERLINE_OFF: []byte{0x1B, 0x2D, 0x00}, // ESC - 0

	// Text size
	TEXT_SIZE_NORMAL:      []byte{0x1D, 0x21, 0x00}, // GS ! 0
	TEXT_SIZE_DOUBLE_BOTH: []byte{0x1D, 0x21, 0x30}, // GS ! 48

	// Text alignment
	ALIGN_LEFT:   []byte{0x1B, 0x61, 0x00}, // ESC a 0
	ALIGN_CENTER: []byte{0x1B, 0x61, 0x01}, // ESC a 1
	ALIGN_RIGHT:  []byte{0x1B, 0x61, 0x02}, // ESC a 2

	// Paper handling
	LINE_FEED:  []byte{0x0A},       // LF
	FEED_LINES: []byte{0x1B, 0x64}, // ESC d + n

	// Cutting
	CUT_FULL:    []byte{0x1D, 0x56, 0x00}, // GS V 0
	CUT_PARTIAL: []byte{0x1D, 0x56, 0x01}, // GS V 1

	// Cash drawer
	DRAWER_KICK: []byte{0x1B, 0x70, 0x00, 0x19, 0x19}, // ESC p 0 25 25
}

// Status byte bits of the DLE EOT 1 response
const (
	statusBitOffline byte = 0x08
	statusBitError   byte = 0x40
)
