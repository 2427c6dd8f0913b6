package main

import (
	"context"
	"time"
)

// InvoiceStatus is the saga state for an invoice.
type InvoiceStatus string

const (
	StatusPending           InvoiceStatus = "PENDING"
	StatusProcessing        InvoiceStatus = "PROCESSING"
	StatusPaymentProcessing InvoiceStatus = "PAYMENT_PROCESSING"
	StatusCompleted         InvoiceStatus = "COMPLETED"
	StatusFailed            InvoiceStatus = "FAILED"
	StatusCancelled         InvoiceStatus = "CANCELLED"
)

// Terminal reports whether s is an absorbing FSM state.
func (s InvoiceStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Invoice is the row billing owns for the order workflow.
type Invoice struct {
	ID              string
	InvoiceNumber   string
	CustomerID      string
	CustomerEmail   string
	ProductID       string
	Quantity        int
	UnitPrice       float64
	TotalAmount     float64
	Status          InvoiceStatus
	Notes           string
	CustomerStatus  string
	InventoryStatus string
	PaymentStatus   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ErrNotFound is returned by the store when no row matches the requested id.
type ErrNotFound struct{ ID string }

func (e *ErrNotFound) Error() string { return "invoice not found: " + e.ID }

// InvoiceStore is the entity store contract (component B): single-row
// update primitives with optimistic, FSM-aware semantics.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	// UpdateInvoice re-reads the row and invokes mutate on the fresh copy
	// inside the same transaction the commit happens in, so the mutator
	// always sees the current FSM state before deciding the next one.
	UpdateInvoice(ctx context.Context, id string, mutate func(*Invoice) error) error
	ListInvoicesByCustomer(ctx context.Context, customerID string) ([]*Invoice, error)
	// ListStuckPaymentProcessing returns invoices still PAYMENT_PROCESSING
	// past deadline, for the startup/periodic payment-timeout recovery sweep.
	ListStuckPaymentProcessing(ctx context.Context, deadline time.Time) ([]*Invoice, error)
}
