package main

import (
	"context"
	"time"
)

// PaymentStatus is the lifecycle state of a PaymentRecord.
type PaymentStatus string

const (
	PaymentInFlight  PaymentStatus = "IN_FLIGHT"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// PaymentRecord is payment's own entity row: one per invoice, recording
// the outcome of a payment-request so a redelivered request is answered
// from the record instead of charging twice, and so the deletion
// validator can see whether a customer has a charge mid-flight.
type PaymentRecord struct {
	InvoiceID     string        `json:"invoice_id"`
	CustomerID    string        `json:"customer_id"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Amount        float64       `json:"amount"`
	Status        PaymentStatus `json:"status"`
	FailureReason string        `json:"failure_reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// PaymentStore is the entity store (component B) for payment records.
type PaymentStore interface {
	// GetByInvoice returns nil, nil if no record exists yet for invoiceID.
	GetByInvoice(ctx context.Context, invoiceID string) (*PaymentRecord, error)
	// CreateInFlight inserts a new IN_FLIGHT record, or returns the
	// existing record (and created=false) if one already exists for this
	// invoice — the idempotency guard against a redelivered payment-request.
	CreateInFlight(ctx context.Context, invoiceID, customerID string, amount float64) (rec *PaymentRecord, created bool, err error)
	// Resolve transitions an IN_FLIGHT record to SUCCEEDED or FAILED.
	Resolve(ctx context.Context, invoiceID string, status PaymentStatus, transactionID, failureReason string) error
	// HasInFlightForCustomer reports whether customerID has any
	// IN_FLIGHT payment record, for the deletion validator's veto check.
	HasInFlightForCustomer(ctx context.Context, customerID string) (bool, error)
}
