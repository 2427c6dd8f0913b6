package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prietto/microservices-dapr/common/broker"
	"github.com/prietto/microservices-dapr/common/events"
	"github.com/prietto/microservices-dapr/common/metrics"
	"github.com/prietto/microservices-dapr/payment/processor"
)

// RegisterConsumers binds payment's event bus subscriptions.
func RegisterConsumers(adapter *broker.Adapter, store PaymentStore, charger processor.PaymentProcessor, validator *DeletionValidator, sagaMetrics *metrics.SagaMetrics, logger *slog.Logger) error {
	subs := []struct {
		queue string
		topic string
		fn    func(ctx context.Context, body []byte) error
	}{
		{"payment.payment-request", broker.PaymentRequest, func(ctx context.Context, body []byte) error {
			var req events.PaymentRequestEvent
			if err := broker.DecodePayload(body, &req); err != nil {
				return fmt.Errorf("failed to decode payment-request: %w", err)
			}
			return handlePaymentRequest(ctx, adapter, store, charger, req, sagaMetrics, logger)
		}},
		{"payment.customer-deletion-request", broker.CustomerDeletionRequest, func(ctx context.Context, body []byte) error {
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

// handlePaymentRequest charges synchronously and resolves the in-flight
// record created for idempotency before it publishes the outcome. A
// redelivered request for an invoice that already resolved is answered
// from the stored record instead of charging twice.
func handlePaymentRequest(ctx context.Context, adapter *broker.Adapter, store PaymentStore, charger processor.PaymentProcessor, req events.PaymentRequestEvent, sagaMetrics *metrics.SagaMetrics, logger *slog.Logger) error {
	rec, created, err := store.CreateInFlight(ctx, req.InvoiceID, req.CustomerID, req.Amount)
	if err != nil {
		return fmt.Errorf("failed to record in-flight payment for invoice %s: %w", req.InvoiceID, err)
	}

	if !created {
		switch rec.Status {
		case PaymentSucceeded:
			return adapter.Publish(ctx, broker.PaymentCompleted, events.PaymentCompletedEvent{
				InvoiceID: rec.InvoiceID, TransactionID: rec.TransactionID, Amount: rec.Amount,
			})
		case PaymentFailed:
			return adapter.Publish(ctx, broker.PaymentFailed, events.PaymentFailedEvent{
				InvoiceID: rec.InvoiceID, Reason: rec.FailureReason,
			})
		default:
			logger.Warn("payment-request redelivered while charge still in flight, skipping",
				slog.String("invoice_id", req.InvoiceID))
			return nil
		}
	}

	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}
	metadata := map[string]string{"invoice_id": req.InvoiceID, "order_id": req.OrderID, "customer_id": req.CustomerID}

	chargeStart := time.Now()
	txID, chargeErr := charger.Charge(ctx, req.Amount, currency, req.Description, metadata)
	sagaMetrics.PaymentAPIDuration.Observe(time.Since(chargeStart).Seconds())
	if chargeErr != nil {
		var declined *processor.DeclinedError
		if errors.As(chargeErr, &declined) {
			if err := store.Resolve(ctx, req.InvoiceID, PaymentFailed, "", declined.Reason); err != nil {
				return fmt.Errorf("failed to record declined payment for invoice %s: %w", req.InvoiceID, err)
			}
			return adapter.Publish(ctx, broker.PaymentFailed, events.PaymentFailedEvent{
				InvoiceID: req.InvoiceID, Reason: declined.Reason,
			})
		}
		return fmt.Errorf("failed to charge for invoice %s: %w", req.InvoiceID, chargeErr)
	}

	if err := store.Resolve(ctx, req.InvoiceID, PaymentSucceeded, txID, ""); err != nil {
		return fmt.Errorf("failed to record successful payment for invoice %s: %w", req.InvoiceID, err)
	}
	return adapter.Publish(ctx, broker.PaymentCompleted, events.PaymentCompletedEvent{
		InvoiceID: req.InvoiceID, TransactionID: txID, Amount: req.Amount,
	})
}
