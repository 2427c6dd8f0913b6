package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prietto/microservices-dapr/payment/processor"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*PaymentRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*PaymentRecord)}
}

func (f *fakeStore) GetByInvoice(ctx context.Context, invoiceID string) (*PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[invoiceID], nil
}

func (f *fakeStore) CreateInFlight(ctx context.Context, invoiceID, customerID string, amount float64) (*PaymentRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[invoiceID]; ok {
		return rec, false, nil
	}
	rec := &PaymentRecord{InvoiceID: invoiceID, CustomerID: customerID, Amount: amount, Status: PaymentInFlight, CreatedAt: time.Now()}
	f.records[invoiceID] = rec
	return rec, true, nil
}

func (f *fakeStore) Resolve(ctx context.Context, invoiceID string, status PaymentStatus, transactionID, failureReason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.records[invoiceID]
	rec.Status = status
	rec.TransactionID = transactionID
	rec.FailureReason = failureReason
	return nil
}

func (f *fakeStore) HasInFlightForCustomer(ctx context.Context, customerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.CustomerID == customerID && rec.Status == PaymentInFlight {
			return true, nil
		}
	}
	return false, nil
}

type fakeCharger struct {
	txID string
	err  error
}

func (f *fakeCharger) Charge(ctx context.Context, amount float64, currency, description string, metadata map[string]string) (string, error) {
	return f.txID, f.err
}

func TestHasInFlightForCustomerVetoesDeletion(t *testing.T) {
	store := newFakeStore()
	store.CreateInFlight(context.Background(), "inv-1", "cust-1", 10)

	inFlight, err := store.HasInFlightForCustomer(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inFlight {
		t.Fatal("expected customer with an in-flight payment to be reported as in-flight")
	}
}

func TestDeclinedChargeResolvesRecordFailed(t *testing.T) {
	store := newFakeStore()
	charger := &fakeCharger{err: &processor.DeclinedError{Reason: "card declined"}}

	rec, created, err := store.CreateInFlight(context.Background(), "inv-1", "cust-1", 10)
	if err != nil || !created {
		t.Fatalf("setup failed: rec=%+v created=%v err=%v", rec, created, err)
	}

	txID, err := charger.Charge(context.Background(), 10, "usd", "", nil)
	if txID != "" || err == nil {
		t.Fatalf("expected declined charge, got txID=%q err=%v", txID, err)
	}

	if err := store.Resolve(context.Background(), "inv-1", PaymentFailed, "", "card declined"); err != nil {
		t.Fatalf("unexpected error resolving: %v", err)
	}

	got, _ := store.GetByInvoice(context.Background(), "inv-1")
	if got.Status != PaymentFailed || got.FailureReason != "card declined" {
		t.Fatalf("unexpected record state: %+v", got)
	}
}

func TestCreateInFlightSecondDeliveryReturnsExistingRecord(t *testing.T) {
	store := newFakeStore()
	store.CreateInFlight(context.Background(), "inv-1", "cust-1", 10)
	store.Resolve(context.Background(), "inv-1", PaymentSucceeded, "tx-1", "")

	rec, created, err := store.CreateInFlight(context.Background(), "inv-1", "cust-1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("expected redelivery to report created=false")
	}
	if rec.Status != PaymentSucceeded || rec.TransactionID != "tx-1" {
		t.Fatalf("expected resolved record to be returned unchanged, got %+v", rec)
	}
}
