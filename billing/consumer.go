package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prietto/microservices-dapr/common/broker"
	"github.com/prietto/microservices-dapr/common/events"
)

// RegisterConsumers binds billing's event bus adapter subscriptions to the
// orchestrator and deletion validator. Each handler follows §4.1's
// contract: infrastructure errors bubble up for retry, business-level
// rejections are absorbed into invoice state and the handler returns nil.
func RegisterConsumers(adapter *broker.Adapter, orch *Orchestrator, validator *DeletionValidator, logger *slog.Logger) error {
	subs := []struct {
		queue string
		topic string
		fn    func(ctx context.Context, body []byte) error
	}{
		{"billing.inventory-response", broker.InventoryResponse, func(ctx context.Context, body []byte) error {
			var resp events.InventoryCheckResponse
			if err := broker.DecodePayload(body, &resp); err != nil {
				return fmt.Errorf("failed to decode inventory-response: %w", err)
			}
			return orch.OnInventoryResponse(ctx, resp)
		}},
		{"billing.customer-response", broker.CustomerResponse, func(ctx context.Context, body []byte) error {
			var resp events.CustomerCheckResponse
			if err := broker.DecodePayload(body, &resp); err != nil {
				return fmt.Errorf("failed to decode customer-response: %w", err)
			}
			return orch.OnCustomerResponse(ctx, resp)
		}},
		{"billing.payment-completed", broker.PaymentCompleted, func(ctx context.Context, body []byte) error {
			var evt events.PaymentCompletedEvent
			if err := broker.DecodePayload(body, &evt); err != nil {
				return fmt.Errorf("failed to decode payment-completed: %w", err)
			}
			return orch.OnPaymentCompleted(ctx, evt)
		}},
		{"billing.payment-failed", broker.PaymentFailed, func(ctx context.Context, body []byte) error {
			var evt events.PaymentFailedEvent
			if err := broker.DecodePayload(body, &evt); err != nil {
				return fmt.Errorf("failed to decode payment-failed: %w", err)
			}
			return orch.OnPaymentFailed(ctx, evt)
		}},
		{"billing.inventory-compensated", broker.InventoryCompensated, func(ctx context.Context, body []byte) error {
			var evt events.InventoryCompensatedEvent
			if err := broker.DecodePayload(body, &evt); err != nil {
				return fmt.Errorf("failed to decode inventory-compensated: %w", err)
			}
			return orch.OnInventoryCompensated(ctx, evt)
		}},
		{"billing.customer-deletion-request", broker.CustomerDeletionRequest, func(ctx context.Context, body []byte) error {
			var req events.CustomerDeletionRequestEvent
			if err := broker.DecodePayload(body, &req); err != nil {
				return fmt.Errorf("failed to decode customer.deletion.request: %w", err)
			}
			return validator.Handle(ctx, req)
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
