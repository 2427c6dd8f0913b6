package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prietto/microservices-dapr/common/broker"
	"github.com/prietto/microservices-dapr/common/events"
)

// RegisterConsumers binds accounts' event bus subscriptions: the
// customer-check request billing fans out during invoice creation, and
// the per-participant deletion votes the coordinator aggregates.
func RegisterConsumers(adapter *broker.Adapter, coordinator *Coordinator, store CustomerStore, logger *slog.Logger) error {
	subs := []struct {
		queue string
		topic string
		fn    func(ctx context.Context, body []byte) error
	}{
		{"accounts.customer-check", broker.CustomerCheck, func(ctx context.Context, body []byte) error {
			var req events.CustomerCheckRequest
			if err := broker.DecodePayload(body, &req); err != nil {
				return fmt.Errorf("failed to decode customer-check: %w", err)
			}
			return handleCustomerCheck(ctx, adapter, store, req, logger)
		}},
		{"accounts.customer-deletion-response", broker.CustomerDeletionResponse, func(ctx context.Context, body []byte) error {
			var resp events.CustomerDeletionResponseEvent
			if err := broker.DecodePayload(body, &resp); err != nil {
				return fmt.Errorf("failed to decode customer.deletion.response: %w", err)
			}
			return coordinator.OnDeletionResponse(ctx, resp)
		}},
	}

	for _, s := range subs {
		if err := adapter.Subscribe(s.queue, s.topic, s.fn); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", s.topic, err)
		}
		logger.Info("subscribed", slog.String("topic", s.topic), slog.String("queue", s.queue))
	}

	return nil
}

// handleCustomerCheck answers billing's invoice-creation fan-out: it
// verifies the customer exists (creating a stub ACTIVE row on first sight
// is out of scope here — accounts only reports what it knows) and
// publishes customer-response.
func handleCustomerCheck(ctx context.Context, adapter *broker.Adapter, store CustomerStore, req events.CustomerCheckRequest, logger *slog.Logger) error {
	resp := events.CustomerCheckResponse{
		InvoiceID: req.InvoiceID,
		Service:   "accounts",
	}

	_, err := store.GetCustomer(ctx, req.CustomerID)
	switch {
	case err == nil:
		resp.CustomerExists = true
		resp.CustomerCreated = false
	default:
		var notFound *ErrNotFound
		if errors.As(err, &notFound) {
			resp.CustomerExists = false
		} else {
			resp.Error = err.Error()
		}
	}

	if err := adapter.Publish(ctx, broker.CustomerResponse, resp); err != nil {
		return fmt.Errorf("failed to publish customer-response for invoice %s: %w", req.InvoiceID, err)
	}
	return nil
}
