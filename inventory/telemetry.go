package main

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

// TelemetryMiddleware decorates an InventoryStore with span events for
// the operations that mutate stock, so a trace through billing's saga
// shows exactly when and where a decrement or compensation landed.
type TelemetryMiddleware struct {
	next InventoryStore
}

func NewTelemetryMiddleware(next InventoryStore) InventoryStore {
	return &TelemetryMiddleware{next}
}

func (s *TelemetryMiddleware) GetItem(ctx context.Context, productID string) (*InventoryItem, error) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(fmt.Sprintf("GetItem: %s", productID))
	return s.next.GetItem(ctx, productID)
}

func (s *TelemetryMiddleware) ListItems(ctx context.Context) ([]*InventoryItem, error) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent("ListItems")
	return s.next.ListItems(ctx)
}

func (s *TelemetryMiddleware) CheckAndDecrement(ctx context.Context, productID string, amount int) (int, error) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(fmt.Sprintf("CheckAndDecrement: product=%s amount=%d", productID, amount))
	return s.next.CheckAndDecrement(ctx, productID, amount)
}

func (s *TelemetryMiddleware) ApplyCompensation(ctx context.Context, invoiceID, productID string, amount int, compensationType string) (int, bool, error) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(fmt.Sprintf("ApplyCompensation: invoice=%s product=%s amount=%d type=%s", invoiceID, productID, amount, compensationType))
	return s.next.ApplyCompensation(ctx, invoiceID, productID, amount, compensationType)
}

var _ InventoryStore = (*TelemetryMiddleware)(nil)
