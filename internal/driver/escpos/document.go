// internal/driver/escpos/document.go
package escpos

import (
	"bytes"
	"fmt"
	"strings"

	"printer-service/internal/model"
)

const defaultHeader = "COMANDA"

// noteIndent prefixes item notes printed on their own line.
const noteIndent = "  > "

// buildComanda renders a kitchen/bar ticket into a complete ESC/POS byte
// sequence: header block, order metadata, item lines with notes, footer and
// a trailing feed. Cutting and drawer kick are appended by the driver.
func buildComanda(job model.TicketJob, width int) []byte {
	var doc bytes.Buffer

	doc.Write(ESC_POS_COMMANDS.INITIALIZE)

	// Header: centered, double size, bold
	header := job.Header
	if header == "" {
		header = defaultHeader
	}
	doc.Write(ESC_POS_COMMANDS.ALIGN_CENTER)
	doc.Write(ESC_POS_COMMANDS.TEXT_SIZE_DOUBLE_BOTH)
	doc.Write(ESC_POS_COMMANDS.TEXT_BOLD_ON)
	writeLine(&doc, header)
	doc.Write(ESC_POS_COMMANDS.TEXT_BOLD_OFF)
	doc.Write(ESC_POS_COMMANDS.TEXT_SIZE_NORMAL)
	doc.Write(ESC_POS_COMMANDS.ALIGN_LEFT)

	separator := strings.Repeat("-", width)
	writeLine(&doc, separator)

	// Order metadata
	writeLine(&doc, fmt.Sprintf("Order: %s", job.OrderNumber))
	if job.Table != "" {
		writeLine(&doc, fmt.Sprintf("Table: %s", job.Table))
	}
	if job.Timestamp != "" {
		writeLine(&doc, fmt.Sprintf("Time: %s", job.Timestamp))
	}
	writeLine(&doc, separator)

	// Item lines
	for _, item := range job.Items {
		line := fmt.Sprintf("%sx %s", item.Quantity, item.Description)
		for _, wrapped := range wrapText("", "   ", line, width) {
			writeLine(&doc, wrapped)
		}
		if item.Notes != "" {
			for _, wrapped := range wrapText(noteIndent, "    ", item.Notes, width) {
				writeLine(&doc, wrapped)
			}
		}
	}

	// Footer
	if job.Footer != "" {
		writeLine(&doc, separator)
		doc.Write(ESC_POS_COMMANDS.ALIGN_CENTER)
		writeLine(&doc, job.Footer)
		doc.Write(ESC_POS_COMMANDS.ALIGN_LEFT)
	}

	doc.Write(ESC_POS_COMMANDS.LINE_FEED)
	doc.Write(ESC_POS_COMMANDS.LINE_FEED)
	doc.Write(ESC_POS_COMMANDS.LINE_FEED)

	return doc.Bytes()
}

func writeLine(doc *bytes.Buffer, text string) {
	doc.WriteString(text)
	doc.Write(ESC_POS_COMMANDS.LINE_FEED)
}

// wrapText word-wraps text to the paper width. The first line starts with
// first, every continuation line with cont; a single word longer than a
// full line is hard-broken.
func wrapText(first, cont, text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	indent := first
	current := ""

	for _, word := range words {
		for word != "" {
			if current == "" {
				avail := width - len(indent)
				if avail <= 0 {
					// The indent eats the whole line; drop it so the
					// loop always consumes at least one character.
					indent = ""
					avail = width
				}
				if len(word) <= avail {
					current = indent + word
					break
				}
				lines = append(lines, indent+word[:avail])
				word = word[avail:]
				indent = cont
				continue
			}
			if len(current)+1+len(word) <= width {
				current += " " + word
				break
			}
			lines = append(lines, current)
			current = ""
			indent = cont
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// buildText renders an ad hoc text block with the given formatting,
// returning to defaults afterwards.
func buildText(text string, align []byte, bold, underline bool) []byte {
	var doc bytes.Buffer

	doc.Write(align)
	if bold {
		doc.Write(ESC_POS_COMMANDS.TEXT_BOLD_ON)
	}
	if underline {
		doc.Write(ESC_POS_COMMANDS.TEXT_UNDERLINE_ON)
	}

	doc.WriteString(text)
	doc.Write(ESC_POS_COMMANDS.LINE_FEED)

	if underline {
		doc.Write(ESC_POS_COMMANDS.TEXT_UNDERLINE_OFF)
	}
	if bold {
		doc.Write(ESC_POS_COMMANDS.TEXT_BOLD_OFF)
	}
	doc.Write(ESC_POS_COMMANDS.ALIGN_LEFT)

	return doc.Bytes()
}
