// Package events defines the JSON payloads exchanged on the saga event
// bus. Every participant marshals/unmarshals these types directly; no
// wire-format translation layer sits between a Go struct and the topic.
package events

import "time"

// Envelope is the CloudEvents-style wrapper some publishers use, with the
// business payload nested under Data. A handler must accept either a bare
// payload or an Envelope-wrapped one (§4.1 of the saga design).
type Envelope struct {
	Data interface{} `json:"data"`
}

// InventoryCheckRequest asks inventory whether a product has enough stock
// for an invoice in flight.
type InventoryCheckRequest struct {
	InvoiceID string `json:"invoice_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Action    string `json:"action"`
}

// InventoryCheckResponse is inventory's answer to an InventoryCheckRequest.
type InventoryCheckResponse struct {
	InvoiceID        string  `json:"invoice_id"`
	ProductID        string  `json:"product_id"`
	QuantityRequested int    `json:"quantity_requested"`
	Available        bool    `json:"available"`
	RemainingStock   int     `json:"remaining_stock"`
	UnitPrice        float64 `json:"unit_price"`
	Message          string  `json:"message,omitempty"`
}

// CustomerCheckRequest asks accounts to verify a customer exists.
type CustomerCheckRequest struct {
	InvoiceID     string `json:"invoice_id"`
	CustomerID    string `json:"customer_id"`
	CustomerEmail string `json:"customer_email"`
	Action        string `json:"action"`
}

// CustomerCheckResponse is accounts' answer to a CustomerCheckRequest.
type CustomerCheckResponse struct {
	InvoiceID       string    `json:"invoice_id"`
	CustomerExists  bool      `json:"customer_exists"`
	CustomerCreated bool      `json:"customer_created"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Service         string    `json:"service"`
}

// PaymentRequestEvent asks payment to authorize a charge for an invoice.
type PaymentRequestEvent struct {
	InvoiceID   string  `json:"invoiceId"`
	OrderID     string  `json:"orderId"`
	Amount      float64 `json:"amount"`
	CustomerID  string  `json:"customerId"`
	ProductID   string  `json:"productId"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
	RequestedBy string  `json:"requestedBy"`
}

// PaymentCompletedEvent reports a successful charge.
type PaymentCompletedEvent struct {
	InvoiceID     string  `json:"invoice_id"`
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
}

// PaymentFailedEvent reports a failed or declined charge.
type PaymentFailedEvent struct {
	InvoiceID    string `json:"invoice_id"`
	Reason       string `json:"reason"`
	ErrorDetails string `json:"error_details,omitempty"`
}

// CompensateInventoryRequest asks inventory to undo a reservation.
type CompensateInventoryRequest struct {
	InvoiceID         string `json:"invoice_id"`
	ProductID         string `json:"product_id"`
	Quantity          int    `json:"quantity"`
	Reason            string `json:"reason"`
	CompensationType  string `json:"compensation_type"`
	TriggeredBy       string `json:"triggered_by"`
}

// InventoryCompensatedEvent confirms (or reports failure of) a compensation.
type InventoryCompensatedEvent struct {
	InvoiceID             string `json:"invoice_id"`
	ProductID             string `json:"product_id"`
	QuantityRestored      int    `json:"quantity_restored"`
	CurrentStock          int    `json:"current_stock"`
	CompensationSuccessful bool  `json:"compensation_successful"`
	Error                 string `json:"error,omitempty"`
}

// CustomerDeletionRequestEvent broadcasts a deletion vote request to every
// expected participant.
type CustomerDeletionRequestEvent struct {
	CustomerID          string    `json:"customer_id"`
	RequestedBy         string    `json:"requested_by"`
	Timestamp           time.Time `json:"timestamp"`
	ExpectedServices    []string  `json:"expected_services"`
	TimeoutSeconds      int       `json:"timeout_seconds"`
	SilenceMeansConsent bool      `json:"silence_means_consent"`
}

// CustomerDeletionResponseEvent is a single participant's vote.
type CustomerDeletionResponseEvent struct {
	CustomerID      string    `json:"customer_id"`
	ServiceName     string    `json:"service_name"`
	CanDelete       bool      `json:"can_delete"`
	BlockingReason  string    `json:"blocking_reason,omitempty"`
	ValidatedAt     time.Time `json:"validated_at"`
}

// BlockedBy names one participant that vetoed a deletion.
type BlockedBy struct {
	Service string `json:"service"`
	Reason  string `json:"reason"`
}

// CustomerDeletionResultEvent announces the coordinator's decision.
type CustomerDeletionResultEvent struct {
	CustomerID string      `json:"customer_id"`
	Decision   string      `json:"decision"` // "COMMIT" | "CANCEL"
	BlockedBy  []BlockedBy `json:"blocked_by,omitempty"`
}

// CustomerDeletionCompletedEvent is only emitted on commit.
type CustomerDeletionCompletedEvent struct {
	CustomerID string `json:"customer_id"`
	Method     string `json:"method"` // "consensus" | "silence_timeout"
}
