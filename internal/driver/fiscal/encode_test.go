// internal/driver/fiscal/encode_test.go
package fiscal

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"printer-service/internal/model"
)

func TestEncodeItem(t *testing.T) {
	item := model.ReceiptItem{
		Description: "Caffe",
		Quantity:    decimal.NewFromInt(2),
		UnitPrice:   decimal.RequireFromString("1.20"),
		TaxPercent:  decimal.NewFromInt(10),
	}

	payload := encodeItem(item)

	expected := append([]byte("Caffe"),
		0x00, 0x00, 0x07, 0xD0, // 2.000 in thousandths
		0x00, 0x00, 0x00, 0x78, // 1.20 in cents
		0x0A, // 10% VAT
	)
	assert.Equal(t, expected, payload)
}

func TestEncodeItemFractionalQuantity(t *testing.T) {
	item := model.ReceiptItem{
		Description: "Prosciutto",
		Quantity:    decimal.RequireFromString("0.150"),
		UnitPrice:   decimal.RequireFromString("28.90"),
		TaxPercent:  decimal.NewFromInt(4),
	}

	payload := encodeItem(item)

	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x96}, payload[10:14]) // 150 thousandths
	assert.Equal(t, []byte{0x00, 0x00, 0x0B, 0x4A}, payload[14:18]) // 2890 cents
	assert.Equal(t, byte(0x04), payload[18])
}

func TestEncodeItemTruncatesLongDescription(t *testing.T) {
	item := model.ReceiptItem{
		Description: strings.Repeat("X", 60),
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   decimal.NewFromInt(1),
		TaxPercent:  decimal.NewFromInt(22),
	}

	payload := encodeItem(item)

	assert.Len(t, payload, maxDescriptionBytes+9)
	assert.Equal(t, []byte(strings.Repeat("X", maxDescriptionBytes)), payload[:maxDescriptionBytes])
}

func TestEncodePayment(t *testing.T) {
	payload := encodePayment(model.ReceiptPayment{
		Type:   "cash",
		Amount: decimal.RequireFromString("2.40"),
	})
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00, 0xF0}, payload)

	payload = encodePayment(model.ReceiptPayment{
		Type:   "card",
		Amount: decimal.RequireFromString("125.00"),
	})
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x30, 0xD4}, payload)
}

func TestBuildFrame(t *testing.T) {
	frame := buildFrame(SF20_COMMANDS.OPEN, nil)
	assert.Equal(t, []byte{0x1B, 0x40, 0x1B, 0x47, 0x04}, frame)

	frame = buildFrame(SF20_COMMANDS.PAYMENT, []byte{0x01, 0xAA})
	assert.Equal(t, []byte{0x1B, 0x40, 0x1B, 0x50, 0x01, 0xAA, 0x04}, frame)
}
