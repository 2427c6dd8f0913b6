package main

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newTestStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{db: db}, mock
}

func paymentRow(invoiceID string, status PaymentStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"invoice_id", "customer_id", "transaction_id", "amount", "status", "failure_reason", "created_at", "updated_at",
	}).AddRow(invoiceID, "cust-1", nil, 20.0, status, nil, now, now)
}

func TestCreateInFlightFirstDeliveryInserts(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO payments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT .* FROM payments WHERE invoice_id = \\$1").
		WithArgs("inv-1").
		WillReturnRows(paymentRow("inv-1", PaymentInFlight))

	_, created, err := store.CreateInFlight(context.Background(), "inv-1", "cust-1", 20.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected first delivery to report created=true")
	}
}

func TestCreateInFlightRedeliveryIsIdempotent(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO payments").
		WillReturnResult(sqlmock.NewResult(0, 0)) // ON CONFLICT DO NOTHING
	mock.ExpectQuery("SELECT .* FROM payments WHERE invoice_id = \\$1").
		WithArgs("inv-1").
		WillReturnRows(paymentRow("inv-1", PaymentSucceeded))

	rec, created, err := store.CreateInFlight(context.Background(), "inv-1", "cust-1", 20.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("expected redelivery to report created=false")
	}
	if rec.Status != PaymentSucceeded {
		t.Fatalf("expected existing record's real status to be returned, got %s", rec.Status)
	}
}
