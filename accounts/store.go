package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore is the entity store (component B) for customers. It
// follows the same guarded single-row update shape as billing's
// PostgresStore: re-read under FOR UPDATE, mutate in memory, commit with
// a predicate on the status observed at read time.
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

func (s *PostgresStore) CreateCustomer(ctx context.Context, c *Customer) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	responses, blockedBy, err := marshalDeletionFields(c)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO customers (
			customer_id, email, first_name, last_name, status,
			deletion_requested_at, deletion_timeout_at, deletion_responses, deletion_blocked_by,
			deletion_completed, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		c.CustomerID, c.Email, c.FirstName, c.LastName, c.Status,
		c.DeletionRequestedAt, c.DeletionTimeoutAt, responses, blockedBy,
		c.DeletionCompleted, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	return nil
}

const customerSelect = `SELECT customer_id, email, first_name, last_name, status,
	deletion_requested_at, deletion_timeout_at, deletion_responses, deletion_blocked_by,
	deletion_completed, created_at, updated_at FROM customers`

func (s *PostgresStore) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	row := s.db.QueryRowContext(ctx, customerSelect+" WHERE customer_id = $1", id)
	return scanCustomer(row, id)
}

func scanCustomer(row *sql.Row, id string) (*Customer, error) {
	c := &Customer{}
	var responses, blockedBy []byte
	err := row.Scan(
		&c.CustomerID, &c.Email, &c.FirstName, &c.LastName, &c.Status,
		&c.DeletionRequestedAt, &c.DeletionTimeoutAt, &responses, &blockedBy,
		&c.DeletionCompleted, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}
	if err := unmarshalDeletionFields(c, responses, blockedBy); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCustomer mirrors billing's UpdateInvoice: optimistic, predicate
// guarded, retried a bounded number of times on a lost race.
func (s *PostgresStore) UpdateCustomer(ctx context.Context, id string, mutate func(*Customer) error) error {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin tx: %w", err)
		}

		row := tx.QueryRowContext(ctx, customerSelect+" WHERE customer_id = $1 FOR UPDATE", id)
		c, err := scanCustomer(row, id)
		if err != nil {
			tx.Rollback()
			return err
		}

		observedStatus := c.Status
		if err := mutate(c); err != nil {
			tx.Rollback()
			return err
		}
		c.UpdatedAt = time.Now().UTC()

		responses, blockedBy, err := marshalDeletionFields(c)
		if err != nil {
			tx.Rollback()
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE customers SET
				status = $1, deletion_requested_at = $2, deletion_timeout_at = $3,
				deletion_responses = $4, deletion_blocked_by = $5, deletion_completed = $6,
				updated_at = $7
			WHERE customer_id = $8 AND status = $9`,
			c.Status, c.DeletionRequestedAt, c.DeletionTimeoutAt,
			responses, blockedBy, c.DeletionCompleted,
			c.UpdatedAt, id, observedStatus,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to update customer %s: %w", id, err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to read rows affected: %w", err)
		}

		if rows == 0 {
			tx.Rollback()
			continue
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit customer update: %w", err)
		}
		return nil
	}

	return fmt.Errorf("failed to update customer %s after %d attempts: concurrent writer kept winning", id, maxAttempts)
}

func (s *PostgresStore) ListPendingDeletionsPastTimeout(ctx context.Context, now time.Time) ([]*Customer, error) {
	rows, err := s.db.QueryContext(ctx, customerSelect+" WHERE status = $1 AND deletion_timeout_at < $2",
		StatusPendingDeletion, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deletions past timeout: %w", err)
	}
	defer rows.Close()

	var out []*Customer
	for rows.Next() {
		c := &Customer{}
		var responses, blockedBy []byte
		if err := rows.Scan(
			&c.CustomerID, &c.Email, &c.FirstName, &c.LastName, &c.Status,
			&c.DeletionRequestedAt, &c.DeletionTimeoutAt, &responses, &blockedBy,
			&c.DeletionCompleted, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		if err := unmarshalDeletionFields(c, responses, blockedBy); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func marshalDeletionFields(c *Customer) (responses, blockedBy []byte, err error) {
	responses, err = json.Marshal(c.DeletionResponses)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal deletion_responses: %w", err)
	}
	blockedBy, err = json.Marshal(c.DeletionBlockedBy)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal deletion_blocked_by: %w", err)
	}
	return responses, blockedBy, nil
}

func unmarshalDeletionFields(c *Customer, responses, blockedBy []byte) error {
	if len(responses) > 0 {
		if err := json.Unmarshal(responses, &c.DeletionResponses); err != nil {
			return fmt.Errorf("failed to unmarshal deletion_responses: %w", err)
		}
	}
	if len(blockedBy) > 0 {
		if err := json.Unmarshal(blockedBy, &c.DeletionBlockedBy); err != nil {
			return fmt.Errorf("failed to unmarshal deletion_blocked_by: %w", err)
		}
	}
	return nil
}

var _ CustomerStore = (*PostgresStore)(nil)
