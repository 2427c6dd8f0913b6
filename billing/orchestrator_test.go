package main

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prietto/microservices-dapr/common/events"
	"github.com/prietto/microservices-dapr/common/metrics"
)

// fakeStore is an in-memory InvoiceStore for orchestrator unit tests; it
// serializes updates with a mutex to mirror the single-row update
// contract without needing a real database.
type fakeStore struct {
	mu    sync.Mutex
	byID  map[string]*Invoice
}

func newFakeStore() *fakeStore { return &fakeStore{byID: map[string]*Invoice{}} }

func (s *fakeStore) CreateInvoice(ctx context.Context, inv *Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inv
	s.byID[inv.ID] = &cp
	return nil
}

func (s *fakeStore) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	cp := *inv
	return &cp, nil
}

func (s *fakeStore) UpdateInvoice(ctx context.Context, id string, mutate func(*Invoice) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	cp := *inv
	if err := mutate(&cp); err != nil {
		return err
	}
	s.byID[id] = &cp
	return nil
}

func (s *fakeStore) ListInvoicesByCustomer(ctx context.Context, customerID string) ([]*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Invoice
	for _, inv := range s.byID {
		if inv.CustomerID == customerID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ListStuckPaymentProcessing(ctx context.Context, deadline time.Time) ([]*Invoice, error) {
	return nil, nil
}

func noopLogger() *slog.Logger { return slog.New(slog.NewTextHandler(nopWriter{}, nil)) }

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestOrchestrator(t *testing.T, store InvoiceStore) *Orchestrator {
	t.Helper()
	logger := noopLogger()
	timers := NewPaymentTimers(60*time.Second, logger)
	// publisher is nil-safe for these tests because the scenarios below
	// never reach a code path that calls Publish after the inventory
	// response is rejected as unavailable; happy-path publish tests live
	// in the integration-style consumer wiring, not unit tests.
	orch := NewOrchestrator(store, nil, timers, metrics.NewSagaMetrics("test_billing_"+t.Name()), logger)
	timers.SetCallback(orch.PaymentTimeout)
	return orch
}

func TestOnInventoryResponseUnavailableFailsInvoice(t *testing.T) {
	store := newFakeStore()
	store.CreateInvoice(context.Background(), &Invoice{ID: "inv-1", Status: StatusProcessing, ProductID: "p1", Quantity: 1})

	orch := newTestOrchestrator(t, store)

	err := orch.OnInventoryResponse(context.Background(), events.InventoryCheckResponse{
		InvoiceID: "inv-1",
		Available: false,
		Message:   "out of stock",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inv, _ := store.GetInvoice(context.Background(), "inv-1")
	if inv.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", inv.Status)
	}
}

func TestOnInventoryResponseLateOnTerminalInvoiceDoesNotCorruptAmounts(t *testing.T) {
	store := newFakeStore()
	store.CreateInvoice(context.Background(), &Invoice{
		ID: "inv-4", Status: StatusCompleted, Quantity: 2, UnitPrice: 10, TotalAmount: 20,
	})

	orch := newTestOrchestrator(t, store)

	err := orch.OnInventoryResponse(context.Background(), events.InventoryCheckResponse{
		InvoiceID: "inv-4",
		Available: true,
		UnitPrice: 999,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inv, _ := store.GetInvoice(context.Background(), "inv-4")
	if inv.Status != StatusCompleted {
		t.Fatalf("status changed to %s, want it to remain COMPLETED", inv.Status)
	}
	if inv.UnitPrice != 10 || inv.TotalAmount != 20 {
		t.Fatalf("late inventory-response corrupted settled amounts: unit_price=%v total_amount=%v", inv.UnitPrice, inv.TotalAmount)
	}
}

func TestOnPaymentCompletedIgnoredWhenNotPaymentProcessing(t *testing.T) {
	store := newFakeStore()
	store.CreateInvoice(context.Background(), &Invoice{ID: "inv-2", Status: StatusCompleted})

	orch := newTestOrchestrator(t, store)

	err := orch.OnPaymentCompleted(context.Background(), events.PaymentCompletedEvent{
		InvoiceID:     "inv-2",
		TransactionID: "tx-late",
		Amount:        20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inv, _ := store.GetInvoice(context.Background(), "inv-2")
	if inv.Status != StatusCompleted {
		t.Fatalf("status changed to %s, want it to remain COMPLETED", inv.Status)
	}
	if inv.PaymentStatus == "" {
		t.Fatal("expected late payment-completed to be recorded in payment_status")
	}
}

func TestPaymentTimeoutNoOpAfterAlreadyResolved(t *testing.T) {
	store := newFakeStore()
	store.CreateInvoice(context.Background(), &Invoice{ID: "inv-3", Status: StatusCompleted})

	orch := newTestOrchestrator(t, store)

	if err := orch.PaymentTimeout(context.Background(), "inv-3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inv, _ := store.GetInvoice(context.Background(), "inv-3")
	if inv.Status != StatusCompleted {
		t.Fatalf("status = %s, want it to remain COMPLETED", inv.Status)
	}
}
