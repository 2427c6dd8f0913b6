package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore is the Postgres-backed InventoryStore. CheckAndDecrement
// generalizes the teacher's guarded `quantity - $1 >= 0` decrement
// directly; ApplyCompensation adds an `inventory_compensations` ledger insert
// guarded by a unique constraint on (invoice_id, product_id,
// compensation_type) for idempotent restocking.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) GetItem(ctx context.Context, productID string) (*InventoryItem, error) {
	item := &InventoryItem{}
	err := s.db.QueryRowContext(ctx,
		`SELECT product_id, name, quantity, unit_price, updated_at FROM items WHERE product_id = $1`, productID,
	).Scan(&item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{ProductID: productID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListItems(ctx context.Context) ([]*InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT product_id, name, quantity, unit_price, updated_at FROM items ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*InventoryItem
	for rows.Next() {
		item := &InventoryItem{}
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CheckAndDecrement is the atomic availability check + reservation: a
// single guarded UPDATE that only succeeds if quantity >= amount, so two
// concurrent inventory-checks for the same product can never both
// succeed past the stock actually on hand.
func (s *PostgresStore) CheckAndDecrement(ctx context.Context, productID string, amount int) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET quantity = quantity - $1, updated_at = CURRENT_TIMESTAMP
		WHERE product_id = $2 AND quantity >= $1`,
		amount, productID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to decrement quantity: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return 0, &ErrInsufficientStock{ProductID: productID, Requested: amount}
	}

	var remaining int
	if err := s.db.QueryRowContext(ctx, `SELECT quantity FROM items WHERE product_id = $1`, productID).Scan(&remaining); err != nil {
		return 0, fmt.Errorf("failed to read post-decrement quantity: %w", err)
	}
	return remaining, nil
}

// ApplyCompensation restores amount to productID's quantity, guarded by a
// unique index on (invoice_id, product_id, compensation_type) so a
// redelivered compensate-inventory message never double-credits stock.
func (s *PostgresStore) ApplyCompensation(ctx context.Context, invoiceID, productID string, amount int, compensationType string) (int, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_compensations (invoice_id, product_id, compensation_type, quantity, applied_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (invoice_id, product_id, compensation_type) DO NOTHING`,
		invoiceID, productID, compensationType, amount, time.Now().UTC(),
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert compensation record: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if inserted == 0 {
		// already applied by a prior delivery; read current quantity and
		// report short-circuit without touching stock again
		var remaining int
		err := tx.QueryRowContext(ctx, `SELECT quantity FROM items WHERE product_id = $1`, productID).Scan(&remaining)
		if err == sql.ErrNoRows {
			return 0, false, &ErrNotFound{ProductID: productID}
		}
		if err != nil {
			return 0, false, fmt.Errorf("failed to read quantity: %w", err)
		}
		return remaining, true, tx.Commit()
	}

	restoreRes, err := tx.ExecContext(ctx, `
		UPDATE items SET quantity = quantity + $1, updated_at = CURRENT_TIMESTAMP WHERE product_id = $2`,
		amount, productID,
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to restore quantity: %w", err)
	}
	restoredRows, err := restoreRes.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if restoredRows == 0 {
		return 0, false, &ErrNotFound{ProductID: productID}
	}

	var remaining int
	if err := tx.QueryRowContext(ctx, `SELECT quantity FROM items WHERE product_id = $1`, productID).Scan(&remaining); err != nil {
		return 0, false, fmt.Errorf("failed to read post-restore quantity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit compensation: %w", err)
	}
	return remaining, false, nil
}

var _ InventoryStore = (*PostgresStore)(nil)
