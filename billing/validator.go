package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prietto/microservices-dapr/common/broker"
	"github.com/prietto/microservices-dapr/common/events"
)

// DeletionValidator is billing's participant side of the deletion protocol
// (component F): it vetoes a customer deletion while any invoice for that
// customer is still mid-flight.
type DeletionValidator struct {
	store     InvoiceStore
	publisher *broker.Adapter
}

func NewDeletionValidator(store InvoiceStore, publisher *broker.Adapter) *DeletionValidator {
	return &DeletionValidator{store: store, publisher: publisher}
}

// Handle computes billing's verdict and publishes it once per delivered
// request. Redelivery of the same request recomputes the verdict from
// current state rather than caching the first answer, so a request that's
// redelivered after the blocking invoice finished reflects the new state.
func (v *DeletionValidator) Handle(ctx context.Context, req events.CustomerDeletionRequestEvent) error {
	invoices, err := v.store.ListInvoicesByCustomer(ctx, req.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to list invoices for %s: %w", req.CustomerID, err)
	}

	resp := events.CustomerDeletionResponseEvent{
		CustomerID:  req.CustomerID,
		ServiceName: "billing",
		CanDelete:   true,
		ValidatedAt: time.Now().UTC(),
	}

	for _, inv := range invoices {
		if inv.Status == StatusPending || inv.Status == StatusProcessing || inv.Status == StatusPaymentProcessing {
			resp.CanDelete = false
			resp.BlockingReason = fmt.Sprintf("active invoice %s in status %s", inv.InvoiceNumber, inv.Status)
			break
		}
	}

	return v.publisher.Publish(ctx, broker.CustomerDeletionResponse, resp)
}
