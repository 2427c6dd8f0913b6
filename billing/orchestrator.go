package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prietto/microservices-dapr/common/broker"
	"github.com/prietto/microservices-dapr/common/events"
	"github.com/prietto/microservices-dapr/common/metrics"
)

// Orchestrator is the invoice orchestrator (component D): it drives the
// order workflow end to end, consuming entity-store writes through the
// FSM in fsm.go.
type Orchestrator struct {
	store     InvoiceStore
	publisher *broker.Adapter
	timers    *PaymentTimers
	metrics   *metrics.SagaMetrics
	logger    *slog.Logger
}

func NewOrchestrator(store InvoiceStore, publisher *broker.Adapter, timers *PaymentTimers, m *metrics.SagaMetrics, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{store: store, publisher: publisher, timers: timers, metrics: m, logger: logger}
}

// CreateInvoice persists a new invoice in PENDING, moves it to PROCESSING,
// and fans out the inventory/customer verification requests.
func (o *Orchestrator) CreateInvoice(ctx context.Context, customerID, customerEmail, productID string, quantity int) (*Invoice, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be >= 1")
	}
	if customerID == "" {
		return nil, fmt.Errorf("customerId is required")
	}

	inv := &Invoice{
		ID:            uuid.NewString(),
		InvoiceNumber: "INV-" + uuid.NewString()[:8],
		CustomerID:    customerID,
		CustomerEmail: customerEmail,
		ProductID:     productID,
		Quantity:      quantity,
		Status:        StatusPending,
	}

	if err := o.store.CreateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	publishErr := o.fanOutVerification(ctx, inv)

	err := o.store.UpdateInvoice(ctx, inv.ID, func(cur *Invoice) error {
		if publishErr != nil {
			applyTransition(cur, StatusFailed, "publish failure during creation fan-out: "+publishErr.Error())
			return nil
		}
		applyTransition(cur, StatusProcessing, "")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist post-creation transition: %w", err)
	}

	if publishErr == nil {
		o.metrics.InvoicesCreated.Inc()
	} else {
		o.metrics.InvoicesFailed.Inc()
	}

	return o.store.GetInvoice(ctx, inv.ID)
}

func (o *Orchestrator) fanOutVerification(ctx context.Context, inv *Invoice) error {
	if err := o.publisher.Publish(ctx, broker.InventoryCheck, events.InventoryCheckRequest{
		InvoiceID: inv.ID,
		ProductID: inv.ProductID,
		Quantity:  inv.Quantity,
		Action:    "check",
	}); err != nil {
		return fmt.Errorf("inventory-check publish failed: %w", err)
	}

	if err := o.publisher.Publish(ctx, broker.CustomerCheck, events.CustomerCheckRequest{
		InvoiceID:     inv.ID,
		CustomerID:    inv.CustomerID,
		CustomerEmail: inv.CustomerEmail,
		Action:        "check",
	}); err != nil {
		return fmt.Errorf("customer-check publish failed: %w", err)
	}

	return nil
}

// OnInventoryResponse handles inventory's reply to an inventory-check.
func (o *Orchestrator) OnInventoryResponse(ctx context.Context, resp events.InventoryCheckResponse) error {
	var shouldPublishPayment bool
	var amount float64
	var customerID, productID string

	err := o.store.UpdateInvoice(ctx, resp.InvoiceID, func(inv *Invoice) error {
		if !resp.Available {
			inv.InventoryStatus = "unavailable: " + resp.Message
			applyTransition(inv, StatusFailed, "")
			return nil
		}

		inv.InventoryStatus = "available"

		if !applyTransition(inv, StatusPaymentProcessing, "late inventory-response after "+string(inv.Status)) {
			return nil
		}

		inv.UnitPrice = resp.UnitPrice
		inv.TotalAmount = resp.UnitPrice * float64(inv.Quantity)
		inv.PaymentStatus = "initiated"
		shouldPublishPayment = true
		amount = inv.TotalAmount
		customerID = inv.CustomerID
		productID = inv.ProductID
		return nil
	})
	if err != nil {
		return err
	}

	if !shouldPublishPayment {
		return nil
	}

	if err := o.publisher.Publish(ctx, broker.PaymentRequest, events.PaymentRequestEvent{
		InvoiceID:   resp.InvoiceID,
		OrderID:     resp.InvoiceID,
		Amount:      amount,
		CustomerID:  customerID,
		ProductID:   productID,
		Currency:    "usd",
		Description: "invoice " + resp.InvoiceID,
		RequestedBy: "billing",
	}); err != nil {
		return o.failAndCompensate(ctx, resp.InvoiceID, productID, amount, "payment-request publish failed: "+err.Error())
	}

	o.timers.Schedule(resp.InvoiceID, o.timers.defaultTimeout)
	return nil
}

// OnCustomerResponse handles accounts' reply to a customer-check. Per the
// decided open question in SPEC_FULL.md §10, an error fails the invoice
// unconditionally; otherwise the response is purely narrative.
func (o *Orchestrator) OnCustomerResponse(ctx context.Context, resp events.CustomerCheckResponse) error {
	return o.store.UpdateInvoice(ctx, resp.InvoiceID, func(inv *Invoice) error {
		if resp.Error != "" {
			inv.CustomerStatus = "error: " + resp.Error
			applyTransition(inv, StatusFailed, "")
			return nil
		}
		inv.CustomerStatus = fmt.Sprintf("exists=%v created=%v", resp.CustomerExists, resp.CustomerCreated)
		return nil
	})
}

// OnPaymentCompleted handles a successful charge.
func (o *Orchestrator) OnPaymentCompleted(ctx context.Context, evt events.PaymentCompletedEvent) error {
	o.timers.Cancel(evt.InvoiceID)

	var completed bool
	err := o.store.UpdateInvoice(ctx, evt.InvoiceID, func(inv *Invoice) error {
		inv.PaymentStatus = fmt.Sprintf("completed tx=%s amount=%.2f", evt.TransactionID, evt.Amount)
		completed = applyTransition(inv, StatusCompleted, "late payment-completed after "+string(inv.Status))
		return nil
	})
	if err != nil {
		return err
	}
	if completed {
		o.metrics.InvoicesCompleted.Inc()
	}
	return nil
}

// OnPaymentFailed handles a declined or errored charge: fails the invoice
// and triggers inventory compensation.
func (o *Orchestrator) OnPaymentFailed(ctx context.Context, evt events.PaymentFailedEvent) error {
	o.timers.Cancel(evt.InvoiceID)

	inv, err := o.store.GetInvoice(ctx, evt.InvoiceID)
	if err != nil {
		return err
	}

	err = o.store.UpdateInvoice(ctx, evt.InvoiceID, func(inv *Invoice) error {
		inv.PaymentStatus = "failed: " + evt.Reason
		applyTransition(inv, StatusFailed, "")
		return nil
	})
	if err != nil {
		return err
	}
	o.metrics.InvoicesFailed.Inc()

	return o.publishCompensation(ctx, evt.InvoiceID, inv.ProductID, inv.Quantity, "payment-failed: "+evt.Reason)
}

// PaymentTimeout is the timer-driven fallback when no payment response
// arrives within the configured window.
func (o *Orchestrator) PaymentTimeout(ctx context.Context, invoiceID string) error {
	var shouldCompensate bool
	var productID string
	var quantity int

	err := o.store.UpdateInvoice(ctx, invoiceID, func(inv *Invoice) error {
		if inv.Status != StatusPaymentProcessing {
			return nil // already resolved, timer fired too late: no-op, not an error
		}
		applyTransition(inv, StatusCancelled, "")
		inv.PaymentStatus = "timed out"
		shouldCompensate = true
		productID = inv.ProductID
		quantity = inv.Quantity
		return nil
	})
	if err != nil {
		return err
	}
	if !shouldCompensate {
		return nil
	}

	o.metrics.InvoicesCancelled.Inc()
	return o.publishCompensation(ctx, invoiceID, productID, quantity, "payment timeout")
}

func (o *Orchestrator) failAndCompensate(ctx context.Context, invoiceID, productID string, amount float64, reason string) error {
	var quantity int
	err := o.store.UpdateInvoice(ctx, invoiceID, func(inv *Invoice) error {
		applyTransition(inv, StatusFailed, "")
		quantity = inv.Quantity
		return nil
	})
	if err != nil {
		return err
	}
	o.metrics.InvoicesFailed.Inc()
	return o.publishCompensation(ctx, invoiceID, productID, quantity, reason)
}

func (o *Orchestrator) publishCompensation(ctx context.Context, invoiceID, productID string, quantity int, reason string) error {
	return o.publisher.Publish(ctx, broker.CompensateInventory, events.CompensateInventoryRequest{
		InvoiceID:        invoiceID,
		ProductID:        productID,
		Quantity:         quantity,
		Reason:           reason,
		CompensationType: "restore_inventory",
		TriggeredBy:      "billing",
	})
}

// OnInventoryCompensated records the compensation confirmation as a note;
// no state change is required because the invoice is already terminal.
func (o *Orchestrator) OnInventoryCompensated(ctx context.Context, evt events.InventoryCompensatedEvent) error {
	return o.store.UpdateInvoice(ctx, evt.InvoiceID, func(inv *Invoice) error {
		if evt.CompensationSuccessful {
			appendNote(inv, fmt.Sprintf("compensation applied: %d restored, stock now %d", evt.QuantityRestored, evt.CurrentStock))
		} else {
			appendNote(inv, "compensation failed: "+evt.Error)
		}
		return nil
	})
}
