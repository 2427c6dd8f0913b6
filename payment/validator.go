package main

import (
	"context"
	"log/slog"

	"github.com/prietto/microservices-dapr/common/broker"
	"github.com/prietto/microservices-dapr/common/events"
)

// DeletionValidator is payment's component F participant: it vetoes a
// deletion while a charge for the customer is still IN_FLIGHT, since
// resolving that charge after the customer record is gone would have
// nowhere sane to write its outcome.
type DeletionValidator struct {
	store     PaymentStore
	publisher *broker.Adapter
	logger    *slog.Logger
}

func NewDeletionValidator(store PaymentStore, publisher *broker.Adapter, logger *slog.Logger) *DeletionValidator {
	return &DeletionValidator{store: store, publisher: publisher, logger: logger}
}

func (v *DeletionValidator) Handle(ctx context.Context, req events.CustomerDeletionRequestEvent) error {
	resp := events.CustomerDeletionResponseEvent{
		CustomerID:  req.CustomerID,
		ServiceName: "payment",
		CanDelete:   true,
		ValidatedAt: req.Timestamp,
	}

	inFlight, err := v.store.HasInFlightForCustomer(ctx, req.CustomerID)
	if err != nil {
		return err
	}
	if inFlight {
		resp.CanDelete = false
		resp.BlockingReason = "a payment for this customer is still in flight"
	}

	if err := v.publisher.Publish(ctx, broker.CustomerDeletionResponse, resp); err != nil {
		v.logger.Error("failed to publish deletion response", slog.String("customer_id", req.CustomerID), slog.Any("error", err))
		return err
	}
	return nil
}
