// internal/driver/fiscal/state.go
package fiscal

import (
	"printer-service/internal/model"
	"printer-service/pkg/printer"
)

// fiscalOp names a lifecycle operation for state checking and logging.
type fiscalOp string

const (
	opOpenReceipt    fiscalOp = "open_receipt"
	opAddItem        fiscalOp = "add_item"
	opProcessPayment fiscalOp = "process_payment"
	opCloseReceipt   fiscalOp = "close_receipt"
	opCancelReceipt  fiscalOp = "cancel_receipt"
	opZReport        fiscalOp = "z_report"
	opStatus         fiscalOp = "status"
)

// allowedStates is the receipt lifecycle transition table. An operation
// missing a state is rejected with a StateError before any bytes are sent.
// Status queries are legal in every state and are not listed.
var allowedStates = map[fiscalOp][]model.FiscalState{
	opOpenReceipt:    {model.FiscalStateInit, model.FiscalStateReceiptClosed},
	opAddItem:        {model.FiscalStateReceiptOpen},
	opProcessPayment: {model.FiscalStateReceiptOpen},
	opCloseReceipt:   {model.FiscalStateReceiptOpen},
	opCancelReceipt:  {model.FiscalStateReceiptOpen},
	opZReport:        {model.FiscalStateInit, model.FiscalStateReceiptClosed, model.FiscalStateZRequired},
}

// checkTransition rejects operations that are illegal in the current state.
func checkTransition(state model.FiscalState, op fiscalOp) error {
	for _, allowed := range allowedStates[op] {
		if state == allowed {
			return nil
		}
	}
	return &printer.StateError{State: string(state), Op: string(op)}
}
