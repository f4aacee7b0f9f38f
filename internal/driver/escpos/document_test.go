// internal/driver/escpos/document_test.go
package escpos

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printer-service/internal/model"
)

func TestBuildComandaGolden(t *testing.T) {
	job := model.TicketJob{
		OrderNumber: "17",
		Table:       "5",
		Timestamp:   "12:30",
		Items: []model.TicketItem{
			{Description: "Pizza margherita", Quantity: decimal.NewFromInt(2)},
		},
		Footer: "Buon lavoro",
	}

	doc := buildComanda(job, 32)
	sep := strings.Repeat("-", 32)

	var expected bytes.Buffer
	expected.Write([]byte{0x1B, 0x40})       // init
	expected.Write([]byte{0x1B, 0x61, 0x01}) // center
	expected.Write([]byte{0x1D, 0x21, 0x30}) // double size
	expected.Write([]byte{0x1B, 0x45, 0x01}) // bold on
	expected.WriteString("COMANDA\n")
	expected.Write([]byte{0x1B, 0x45, 0x00}) // bold off
	expected.Write([]byte{0x1D, 0x21, 0x00}) // normal size
	expected.Write([]byte{0x1B, 0x61, 0x00}) // left
	expected.WriteString(sep + "\n")
	expected.WriteString("Order: 17\n")
	expected.WriteString("Table: 5\n")
	expected.WriteString("Time: 12:30\n")
	expected.WriteString(sep + "\n")
	expected.WriteString("2x Pizza margherita\n")
	expected.WriteString(sep + "\n")
	expected.Write([]byte{0x1B, 0x61, 0x01})
	expected.WriteString("Buon lavoro\n")
	expected.Write([]byte{0x1B, 0x61, 0x00})
	expected.WriteString("\n\n\n")

	assert.Equal(t, expected.Bytes(), doc)
}

func TestBuildComandaCustomHeaderAndNotes(t *testing.T) {
	job := model.TicketJob{
		Header:      "CUCINA",
		OrderNumber: "3",
		Items: []model.TicketItem{
			{Description: "Tagliata", Quantity: decimal.NewFromInt(1), Notes: "ben cotta"},
		},
	}

	doc := string(buildComanda(job, 32))

	assert.Contains(t, doc, "CUCINA\n")
	assert.NotContains(t, doc, "COMANDA")
	assert.Contains(t, doc, "1x Tagliata\n")
	assert.Contains(t, doc, "  > ben cotta\n")
	// No table or time lines when absent.
	assert.NotContains(t, doc, "Table:")
	assert.NotContains(t, doc, "Time:")
}

func TestBuildComandaOmitsFooterBlockWhenEmpty(t *testing.T) {
	job := model.TicketJob{
		OrderNumber: "9",
		Items:       []model.TicketItem{{Description: "Acqua", Quantity: decimal.NewFromInt(1)}},
	}

	doc := string(buildComanda(job, 32))
	sep := strings.Repeat("-", 32)

	// Two separators only: after the header and after the metadata.
	assert.Equal(t, 2, strings.Count(doc, sep))
	assert.True(t, strings.HasSuffix(doc, "\n\n\n"))
}

func TestWrapTextBoundsLinesToWidth(t *testing.T) {
	lines := wrapText("", "   ", "3x Spaghetti alle vongole veraci con pomodorini", 32)

	require.Greater(t, len(lines), 1)
	for _, line := range lines {
		assert.LessOrEqual(t, len(line), 32, "line %q", line)
	}
	assert.Equal(t, "3x Spaghetti alle vongole veraci", lines[0])
	assert.Equal(t, "   con pomodorini", lines[1])
}

func TestWrapTextKeepsPrefix(t *testing.T) {
	lines := wrapText("  > ", "    ", "senza glutine per favore grazie mille", 20)

	require.Greater(t, len(lines), 1)
	assert.True(t, strings.HasPrefix(lines[0], "  > "))
	for _, line := range lines[1:] {
		assert.True(t, strings.HasPrefix(line, "    "))
	}
	for _, line := range lines {
		assert.LessOrEqual(t, len(line), 20)
	}
}

func TestWrapTextHardBreaksOversizedWord(t *testing.T) {
	word := strings.Repeat("a", 50)
	lines := wrapText("", "   ", word, 20)

	require.Greater(t, len(lines), 1)
	assert.Equal(t, strings.Repeat("a", 20), lines[0])
	total := 0
	for _, line := range lines {
		assert.LessOrEqual(t, len(line), 20)
		total += len(strings.TrimLeft(line, " "))
	}
	assert.Equal(t, 50, total)
}

func TestWrapTextIndentWiderThanPaper(t *testing.T) {
	// A continuation indent as wide as the paper must not stall the
	// wrapper; it falls back to unindented breaks and still consumes
	// every character.
	lines := wrapText("", "   ", "abcdefgh", 3)
	assert.Equal(t, []string{"abc", "def", "gh"}, lines)

	lines = wrapText(noteIndent, "    ", "note", 4)
	total := 0
	for _, line := range lines {
		assert.LessOrEqual(t, len(line), 4)
		total += len(strings.TrimLeft(strings.TrimPrefix(line, noteIndent), " "))
	}
	assert.Equal(t, len("note"), total)
}

func TestWrapTextShortLineUntouched(t *testing.T) {
	lines := wrapText("", "   ", "2x Caffe", 32)
	assert.Equal(t, []string{"2x Caffe"}, lines)
}

func TestBuildText(t *testing.T) {
	doc := buildText("TOTALE", ESC_POS_COMMANDS.ALIGN_RIGHT, true, false)

	var expected bytes.Buffer
	expected.Write([]byte{0x1B, 0x61, 0x02}) // right
	expected.Write([]byte{0x1B, 0x45, 0x01}) // bold on
	expected.WriteString("TOTALE\n")
	expected.Write([]byte{0x1B, 0x45, 0x00}) // bold off
	expected.Write([]byte{0x1B, 0x61, 0x00}) // back to left

	assert.Equal(t, expected.Bytes(), doc)
}
