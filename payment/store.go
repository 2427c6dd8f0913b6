package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore is the Postgres-backed PaymentStore. CreateInFlight's
// unique constraint on invoice_id is the idempotency guard: a
// redelivered payment-request for an invoice that already has a record
// is answered from that record rather than charging twice.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

const paymentSelect = `SELECT invoice_id, customer_id, transaction_id, amount, status, failure_reason, created_at, updated_at FROM payments`

func (s *PostgresStore) GetByInvoice(ctx context.Context, invoiceID string) (*PaymentRecord, error) {
	row := s.db.QueryRowContext(ctx, paymentSelect+" WHERE invoice_id = $1", invoiceID)
	rec, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment for invoice %s: %w", invoiceID, err)
	}
	return rec, nil
}

func scanPayment(row *sql.Row) (*PaymentRecord, error) {
	rec := &PaymentRecord{}
	var txID, reason sql.NullString
	err := row.Scan(&rec.InvoiceID, &rec.CustomerID, &txID, &rec.Amount, &rec.Status, &reason, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.TransactionID = txID.String
	rec.FailureReason = reason.String
	return rec, nil
}

func (s *PostgresStore) CreateInFlight(ctx context.Context, invoiceID, customerID string, amount float64) (*PaymentRecord, bool, error) {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (invoice_id, customer_id, amount, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (invoice_id) DO NOTHING`,
		invoiceID, customerID, amount, PaymentInFlight, now, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert payment record: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	existing, err := s.GetByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, false, err
	}
	return existing, inserted > 0, nil
}

func (s *PostgresStore) Resolve(ctx context.Context, invoiceID string, status PaymentStatus, transactionID, failureReason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, transaction_id = $2, failure_reason = $3, updated_at = $4
		WHERE invoice_id = $5`,
		status, nullableString(transactionID), nullableString(failureReason), time.Now().UTC(), invoiceID,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve payment for invoice %s: %w", invoiceID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no payment record found for invoice %s", invoiceID)
	}
	return nil
}

func (s *PostgresStore) HasInFlightForCustomer(ctx context.Context, customerID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE customer_id = $1 AND status = $2`,
		customerID, PaymentInFlight).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check in-flight payments for customer %s: %w", customerID, err)
	}
	return count > 0, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

var _ PaymentStore = (*PostgresStore)(nil)
