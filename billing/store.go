package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore is the entity store (component B) for invoices. Every
// write re-reads the row inside a transaction, hands it to the caller's
// mutator, then commits the mutator's result guarded by a predicate on the
// status this read observed — the same optimistic-update shape as the
// teacher's guarded stock decrement, generalized to an arbitrary mutator
// instead of a single fixed column delta.
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

func (s *PostgresStore) CreateInvoice(ctx context.Context, inv *Invoice) error {
	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (
			id, invoice_number, customer_id, customer_email, product_id, quantity,
			unit_price, total_amount, status, notes, customer_status, inventory_status,
			payment_status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		inv.ID, inv.InvoiceNumber, inv.CustomerID, inv.CustomerEmail, inv.ProductID, inv.Quantity,
		inv.UnitPrice, inv.TotalAmount, inv.Status, inv.Notes, inv.CustomerStatus, inv.InventoryStatus,
		inv.PaymentStatus, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

const invoiceSelect = `SELECT id, invoice_number, customer_id, customer_email, product_id, quantity,
	unit_price, total_amount, status, notes, customer_status, inventory_status,
	payment_status, created_at, updated_at FROM invoices`

func (s *PostgresStore) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	row := s.db.QueryRowContext(ctx, invoiceSelect+" WHERE id = $1", id)
	return scanInvoice(row, id)
}

func scanInvoice(row *sql.Row, id string) (*Invoice, error) {
	inv := &Invoice{}
	err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.CustomerID, &inv.CustomerEmail, &inv.ProductID, &inv.Quantity,
		&inv.UnitPrice, &inv.TotalAmount, &inv.Status, &inv.Notes, &inv.CustomerStatus, &inv.InventoryStatus,
		&inv.PaymentStatus, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan invoice: %w", err)
	}
	return inv, nil
}

// UpdateInvoice re-reads the row inside a transaction, invokes mutate on
// it, then commits the full row guarded by `status = <status the mutator
// saw>`. If a concurrent writer changed status in between, the predicate
// fails, rowsAffected is 0, and the write is retried from a fresh read —
// the single-row serialization primitive every saga operation relies on.
func (s *PostgresStore) UpdateInvoice(ctx context.Context, id string, mutate func(*Invoice) error) error {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin tx: %w", err)
		}

		row := tx.QueryRowContext(ctx, invoiceSelect+" WHERE id = $1 FOR UPDATE", id)
		inv, err := scanInvoice(row, id)
		if err != nil {
			tx.Rollback()
			return err
		}

		observedStatus := inv.Status
		if err := mutate(inv); err != nil {
			tx.Rollback()
			return err
		}
		inv.UpdatedAt = time.Now().UTC()

		res, err := tx.ExecContext(ctx, `
			UPDATE invoices SET
				unit_price = $1, total_amount = $2, status = $3, notes = $4,
				customer_status = $5, inventory_status = $6, payment_status = $7, updated_at = $8
			WHERE id = $9 AND status = $10`,
			inv.UnitPrice, inv.TotalAmount, inv.Status, inv.Notes,
			inv.CustomerStatus, inv.InventoryStatus, inv.PaymentStatus, inv.UpdatedAt,
			id, observedStatus,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to update invoice %s: %w", id, err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to read rows affected: %w", err)
		}

		if rows == 0 {
			tx.Rollback()
			continue // lost the race with a concurrent writer; retry from a fresh read
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit invoice update: %w", err)
		}
		return nil
	}

	return fmt.Errorf("failed to update invoice %s after %d attempts: concurrent writer kept winning", id, maxAttempts)
}

func (s *PostgresStore) ListInvoicesByCustomer(ctx context.Context, customerID string) ([]*Invoice, error) {
	rows, err := s.db.QueryContext(ctx, invoiceSelect+" WHERE customer_id = $1", customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices for customer %s: %w", customerID, err)
	}
	defer rows.Close()
	return scanInvoiceRows(rows)
}

func (s *PostgresStore) ListStuckPaymentProcessing(ctx context.Context, deadline time.Time) ([]*Invoice, error) {
	rows, err := s.db.QueryContext(ctx, invoiceSelect+" WHERE status = $1 AND updated_at < $2",
		StatusPaymentProcessing, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck invoices: %w", err)
	}
	defer rows.Close()
	return scanInvoiceRows(rows)
}

func scanInvoiceRows(rows *sql.Rows) ([]*Invoice, error) {
	var out []*Invoice
	for rows.Next() {
		inv := &Invoice{}
		err := rows.Scan(
			&inv.ID, &inv.InvoiceNumber, &inv.CustomerID, &inv.CustomerEmail, &inv.ProductID, &inv.Quantity,
			&inv.UnitPrice, &inv.TotalAmount, &inv.Status, &inv.Notes, &inv.CustomerStatus, &inv.InventoryStatus,
			&inv.PaymentStatus, &inv.CreatedAt, &inv.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice row: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

var _ InvoiceStore = (*PostgresStore)(nil)
