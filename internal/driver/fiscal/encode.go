// internal/driver/fiscal/encode.go
package fiscal

import (
	"encoding/binary"

	"github.com/shopspring/decimal"

	"printer-service/internal/model"
)

// Wire payload limits
const (
	maxDescriptionBytes = 40
)

var (
	thousand = decimal.NewFromInt(1000)
	hundred  = decimal.NewFromInt(100)
)

// encodeItem builds the sale-line payload: description (up to 40 bytes),
// quantity in thousandths (uint32 BE), unit price in cents (uint32 BE),
// tax rate as a whole-percent byte.
func encodeItem(item model.ReceiptItem) []byte {
	desc := []byte(item.Description)
	if len(desc) > maxDescriptionBytes {
		desc = desc[:maxDescriptionBytes]
	}

	payload := make([]byte, 0, len(desc)+9)
	payload = append(payload, desc...)

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], toThousandths(item.Quantity))
	payload = append(payload, buf[:]...)

	binary.BigEndian.PutUint32(buf[:], toCents(item.UnitPrice))
	payload = append(payload, buf[:]...)

	payload = append(payload, byte(item.TaxPercent.IntPart()))
	return payload
}

// encodePayment builds the payment payload: type code byte followed by the
// amount in cents (uint32 BE). The caller validates the payment type.
func encodePayment(payment model.ReceiptPayment) []byte {
	payload := make([]byte, 5)
	payload[0] = PAYMENT_CODES[payment.Type]
	binary.BigEndian.PutUint32(payload[1:], toCents(payment.Amount))
	return payload
}

func toCents(d decimal.Decimal) uint32 {
	return uint32(d.Mul(hundred).Round(0).IntPart())
}

func toThousandths(d decimal.Decimal) uint32 {
	return uint32(d.Mul(thousand).Round(0).IntPart())
}
