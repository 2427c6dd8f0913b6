package main

import (
	"context"
	"log/slog"

	"github.com/prietto/microservices-dapr/common/broker"
	"github.com/prietto/microservices-dapr/common/events"
)

// DeletionValidator is inventory's component F participant: it always
// approves. §4.6 illustrates a veto condition ("unless reserved items
// exist"), but the inventory-check wire contract (§6) carries no
// customer_id — stock holds are addressable only by product, not by the
// customer who triggered them — so inventory has no customer-scoped
// state to veto against and approves unconditionally.
type DeletionValidator struct {
	publisher *broker.Adapter
	logger    *slog.Logger
}

func NewDeletionValidator(publisher *broker.Adapter, logger *slog.Logger) *DeletionValidator {
	return &DeletionValidator{publisher: publisher, logger: logger}
}

func (v *DeletionValidator) Handle(ctx context.Context, req events.CustomerDeletionRequestEvent) error {
	resp := events.CustomerDeletionResponseEvent{
		CustomerID:  req.CustomerID,
		ServiceName: "inventory",
		CanDelete:   true,
		ValidatedAt: req.Timestamp,
	}
	if err := v.publisher.Publish(ctx, broker.CustomerDeletionResponse, resp); err != nil {
		v.logger.Error("failed to publish deletion response", slog.String("customer_id", req.CustomerID), slog.Any("error", err))
		return err
	}
	return nil
}
