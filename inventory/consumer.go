package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prietto/microservices-dapr/common/broker"
	"github.com/prietto/microservices-dapr/common/events"
	"github.com/prietto/microservices-dapr/common/metrics"
)

// RegisterConsumers binds inventory's event bus subscriptions.
func RegisterConsumers(adapter *broker.Adapter, store InventoryStore, validator *DeletionValidator, sagaMetrics *metrics.SagaMetrics, logger *slog.Logger) error {
	subs := []struct {
		queue string
		topic string
		fn    func(ctx context.Context, body []byte) error
	}{
		{"inventory.inventory-check", broker.InventoryCheck, func(ctx context.Context, body []byte) error {
			var req events.InventoryCheckRequest
			if err := broker.DecodePayload(body, &req); err != nil {
				return fmt.Errorf("failed to decode inventory-check: %w", err)
			}
			return handleInventoryCheck(ctx, adapter, store, req, logger)
		}},
		{"inventory.compensate-inventory", broker.CompensateInventory, func(ctx context.Context, body []byte) error {
			var req events.CompensateInventoryRequest
			if err := broker.DecodePayload(body, &req); err != nil {
				return fmt.Errorf("failed to decode compensate-inventory: %w", err)
			}
			return handleCompensateInventory(ctx, adapter, store, req, sagaMetrics, logger)
		}},
		{"inventory.customer-deletion-request", broker.CustomerDeletionRequest, func(ctx context.Context, body []byte) error {
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

func handleInventoryCheck(ctx context.Context, adapter *broker.Adapter, store InventoryStore, req events.InventoryCheckRequest, logger *slog.Logger) error {
	resp := events.InventoryCheckResponse{
		InvoiceID:         req.InvoiceID,
		ProductID:         req.ProductID,
		QuantityRequested: req.Quantity,
	}

	item, err := store.GetItem(ctx, req.ProductID)
	if err != nil {
		var notFound *ErrNotFound
		if errors.As(err, &notFound) {
			resp.Available = false
			resp.Message = err.Error()
			return adapter.Publish(ctx, broker.InventoryResponse, resp)
		}
		return fmt.Errorf("failed to look up product %s: %w", req.ProductID, err)
	}
	resp.UnitPrice = item.UnitPrice

	remaining, err := store.CheckAndDecrement(ctx, req.ProductID, req.Quantity)
	if err != nil {
		var insufficient *ErrInsufficientStock
		if errors.As(err, &insufficient) {
			resp.Available = false
			resp.Message = err.Error()
			return adapter.Publish(ctx, broker.InventoryResponse, resp)
		}
		return fmt.Errorf("failed to decrement stock for product %s: %w", req.ProductID, err)
	}

	resp.Available = true
	resp.RemainingStock = remaining
	if err := adapter.Publish(ctx, broker.InventoryResponse, resp); err != nil {
		return fmt.Errorf("failed to publish inventory-response for invoice %s: %w", req.InvoiceID, err)
	}
	return nil
}

func handleCompensateInventory(ctx context.Context, adapter *broker.Adapter, store InventoryStore, req events.CompensateInventoryRequest, sagaMetrics *metrics.SagaMetrics, logger *slog.Logger) error {
	remaining, alreadyApplied, err := store.ApplyCompensation(ctx, req.InvoiceID, req.ProductID, req.Quantity, req.CompensationType)
	evt := events.InventoryCompensatedEvent{
		InvoiceID:              req.InvoiceID,
		ProductID:              req.ProductID,
		QuantityRestored:       req.Quantity,
		CompensationSuccessful: err == nil,
	}
	if err != nil {
		var notFound *ErrNotFound
		if errors.As(err, &notFound) {
			evt.Error = err.Error()
			return adapter.Publish(ctx, broker.InventoryCompensated, evt)
		}

		evt.Error = err.Error()
		if pubErr := adapter.Publish(ctx, broker.InventoryCompensated, evt); pubErr != nil {
			logger.Error("failed to publish failed-compensation notice", slog.Any("error", pubErr))
		}
		return fmt.Errorf("failed to apply compensation for invoice %s: %w", req.InvoiceID, err)
	}

	if alreadyApplied {
		logger.Info("compensation already applied, short-circuiting duplicate delivery",
			slog.String("invoice_id", req.InvoiceID), slog.String("product_id", req.ProductID))
	} else {
		sagaMetrics.CompensationsApplied.Inc()
	}
	evt.CurrentStock = remaining
	if err := adapter.Publish(ctx, broker.InventoryCompensated, evt); err != nil {
		return fmt.Errorf("failed to publish inventory-compensated for invoice %s: %w", req.InvoiceID, err)
	}
	return nil
}
