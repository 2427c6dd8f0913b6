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

func customerRow(id string, status CustomerStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"customer_id", "email", "first_name", "last_name", "status",
		"deletion_requested_at", "deletion_timeout_at", "deletion_responses", "deletion_blocked_by",
		"deletion_completed", "created_at", "updated_at",
	}).AddRow(id, "c@example.com", "Jane", "Doe", status, nil, nil, []byte("{}"), []byte("[]"), false, now, now)
}

func TestUpdateCustomerCommitsOnFirstTry(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM customers WHERE customer_id = \\$1 FOR UPDATE").
		WithArgs("cust-1").
		WillReturnRows(customerRow("cust-1", StatusActive))
	mock.ExpectExec("UPDATE customers SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.UpdateCustomer(context.Background(), "cust-1", func(c *Customer) error {
		c.Status = StatusPendingDeletion
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateCustomerRetriesOnPredicateMiss(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM customers WHERE customer_id = \\$1 FOR UPDATE").
		WithArgs("cust-1").
		WillReturnRows(customerRow("cust-1", StatusActive))
	mock.ExpectExec("UPDATE customers SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM customers WHERE customer_id = \\$1 FOR UPDATE").
		WithArgs("cust-1").
		WillReturnRows(customerRow("cust-1", StatusPendingDeletion))
	mock.ExpectExec("UPDATE customers SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	calls := 0
	err := store.UpdateCustomer(context.Background(), "cust-1", func(c *Customer) error {
		calls++
		c.Status = StatusDeleted
		c.DeletionCompleted = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected mutate to run twice across retry, got %d", calls)
	}
}
