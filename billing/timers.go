package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PaymentTimers is the payment-timeout timer class from §5: one
// in-memory timer per invoice, re-checking entity state at fire time
// rather than trusting the timer itself, so a terminal transition that
// races the timer is always the authority. Entities surviving a restart
// are caught by the periodic/startup recovery sweep, not by these timers.
type PaymentTimers struct {
	mu             sync.Mutex
	timers         map[string]*time.Timer
	defaultTimeout time.Duration
	callback       func(ctx context.Context, invoiceID string) error
	logger         *slog.Logger
}

func NewPaymentTimers(defaultTimeout time.Duration, logger *slog.Logger) *PaymentTimers {
	return &PaymentTimers{
		timers:         make(map[string]*time.Timer),
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// SetCallback wires the timeout handler once the orchestrator that owns
// PaymentTimers exists (the two are mutually referential at construction).
func (t *PaymentTimers) SetCallback(cb func(ctx context.Context, invoiceID string) error) {
	t.callback = cb
}

// Schedule arms (or re-arms) a payment timeout for invoiceID.
func (t *PaymentTimers) Schedule(invoiceID string, after time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[invoiceID]; ok {
		existing.Stop()
	}

	t.timers[invoiceID] = time.AfterFunc(after, func() {
		t.mu.Lock()
		delete(t.timers, invoiceID)
		t.mu.Unlock()

		if t.callback == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := t.callback(ctx, invoiceID); err != nil {
			t.logger.Error("payment timeout handling failed", slog.String("invoice_id", invoiceID), slog.Any("error", err))
		}
	})
}

// Cancel implicitly cancels a pending timer once its invoice reaches a
// terminal state — the state check at fire time would make this a no-op
// anyway, but cancelling eagerly keeps the timer map from growing unbounded.
func (t *PaymentTimers) Cancel(invoiceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[invoiceID]; ok {
		existing.Stop()
		delete(t.timers, invoiceID)
	}
}

// RecoverySweep finalizes invoices that stayed in PAYMENT_PROCESSING past
// timeout while the process was down, and re-arms nothing further for
// them — PaymentTimeout itself re-checks state and is idempotent against
// the in-memory timer having already fired once before a crash.
func RecoverySweep(ctx context.Context, store InvoiceStore, orchestrator *Orchestrator, timeout time.Duration, logger *slog.Logger) {
	deadline := time.Now().Add(-timeout)
	stuck, err := store.ListStuckPaymentProcessing(ctx, deadline)
	if err != nil {
		logger.Error("recovery sweep query failed", slog.Any("error", err))
		return
	}

	for _, inv := range stuck {
		if err := orchestrator.PaymentTimeout(ctx, inv.ID); err != nil {
			logger.Error("recovery sweep failed to finalize invoice", slog.String("invoice_id", inv.ID), slog.Any("error", err))
		}
	}
}

// RunRecoverySweepLoop runs RecoverySweep at startup and then on every
// tick, so timers that never fired in-process (missed after a GC pause or
// a crash-restart loop) still get reconciled eventually.
func RunRecoverySweepLoop(ctx context.Context, store InvoiceStore, orchestrator *Orchestrator, timeout time.Duration, interval time.Duration, logger *slog.Logger) {
	RecoverySweep(ctx, store, orchestrator, timeout, logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			RecoverySweep(ctx, store, orchestrator, timeout, logger)
		}
	}
}
