package main

import (
	"context"
	"database/sql"
	"errors"
	"testing"

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

func TestApplyCompensationUnknownProductReturnsNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inventory_compensations").
		WithArgs("inv-1", "missing-product", "restore_inventory", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE items SET quantity = quantity \\+ \\$1").
		WithArgs(2, "missing-product").
		WillReturnResult(sqlmock.NewResult(0, 0)) // no such product row
	mock.ExpectRollback()

	_, _, err := store.ApplyCompensation(context.Background(), "inv-1", "missing-product", 2, "restore_inventory")
	if err == nil {
		t.Fatal("expected an error for a compensation against an unknown product")
	}
	var notFound *ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *ErrNotFound, got %v", err)
	}
}

func TestApplyCompensationRedeliveryForUnknownProductReturnsNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inventory_compensations").
		WithArgs("inv-1", "missing-product", "restore_inventory", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0)) // already recorded by a prior delivery; the product row has since gone
	mock.ExpectQuery("SELECT quantity FROM items WHERE product_id = \\$1").
		WithArgs("missing-product").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := store.ApplyCompensation(context.Background(), "inv-1", "missing-product", 2, "restore_inventory")
	if err == nil {
		t.Fatal("expected an error for a compensation against an unknown product")
	}
	var notFound *ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *ErrNotFound, got %v", err)
	}
}
