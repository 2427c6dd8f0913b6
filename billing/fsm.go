package main

// transitions enumerates every legal (from, to) pair of the invoice FSM.
// Anything not listed here is rejected by canTransition and recorded as a
// late/out-of-order note instead of changing status.
var transitions = map[InvoiceStatus]map[InvoiceStatus]bool{
	StatusPending: {
		StatusProcessing: true,
		StatusFailed:     true,
	},
	StatusProcessing: {
		StatusPaymentProcessing: true,
		StatusFailed:            true,
	},
	StatusPaymentProcessing: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

// canTransition reports whether from -> to is a legal FSM edge. Terminal
// states never have outgoing edges, so any request to leave one is always
// false without needing special-casing here.
func canTransition(from, to InvoiceStatus) bool {
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// applyTransition moves inv to next if legal (updated_at is stamped by the
// store when the mutated row is committed). If the
// transition is illegal (including "already terminal"), it appends note to
// the invoice's free-text notes and leaves status untouched, per the
// late-event-neutrality property.
func applyTransition(inv *Invoice, next InvoiceStatus, note string) bool {
	if !canTransition(inv.Status, next) {
		appendNote(inv, note)
		return false
	}
	inv.Status = next
	return true
}

func appendNote(inv *Invoice, note string) {
	if note == "" {
		return
	}
	if inv.Notes == "" {
		inv.Notes = note
		return
	}
	inv.Notes = inv.Notes + "; " + note
}
