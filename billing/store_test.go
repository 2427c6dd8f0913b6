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

func invoiceRow(id string, status InvoiceStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "invoice_number", "customer_id", "customer_email", "product_id", "quantity",
		"unit_price", "total_amount", "status", "notes", "customer_status", "inventory_status",
		"payment_status", "created_at", "updated_at",
	}).AddRow(id, "INV-1", "cust-1", "c@example.com", "prod-1", 2, 10.0, 20.0, status, "", "", "", "", now, now)
}

func TestUpdateInvoiceCommitsOnFirstTry(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM invoices WHERE id = \\$1 FOR UPDATE").
		WithArgs("inv-1").
		WillReturnRows(invoiceRow("inv-1", StatusProcessing))
	mock.ExpectExec("UPDATE invoices SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.UpdateInvoice(context.Background(), "inv-1", func(inv *Invoice) error {
		inv.Status = StatusPaymentProcessing
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateInvoiceRetriesOnPredicateMiss(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM invoices WHERE id = \\$1 FOR UPDATE").
		WithArgs("inv-1").
		WillReturnRows(invoiceRow("inv-1", StatusProcessing))
	mock.ExpectExec("UPDATE invoices SET").
		WillReturnResult(sqlmock.NewResult(0, 0)) // lost the race
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM invoices WHERE id = \\$1 FOR UPDATE").
		WithArgs("inv-1").
		WillReturnRows(invoiceRow("inv-1", StatusFailed)) // concurrent writer already finalized
	mock.ExpectExec("UPDATE invoices SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	calls := 0
	err := store.UpdateInvoice(context.Background(), "inv-1", func(inv *Invoice) error {
		calls++
		applyTransition(inv, StatusPaymentProcessing, "retry attempt")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected mutate to run twice across retry, got %d", calls)
	}
}
