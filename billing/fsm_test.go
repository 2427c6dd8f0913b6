package main

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to InvoiceStatus
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusPaymentProcessing, false},
		{StatusProcessing, StatusPaymentProcessing, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusCompleted, false},
		{StatusPaymentProcessing, StatusCompleted, true},
		{StatusPaymentProcessing, StatusCancelled, true},
		{StatusPaymentProcessing, StatusFailed, true},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusProcessing, false},
		{StatusCancelled, StatusCompleted, false},
	}

	for _, c := range cases {
		if got := canTransition(c.from, c.to); got != c.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestApplyTransitionTerminalIsAbsorbing(t *testing.T) {
	inv := &Invoice{Status: StatusCompleted}

	ok := applyTransition(inv, StatusFailed, "late payment-failed after completion")
	if ok {
		t.Fatal("expected transition out of COMPLETED to be rejected")
	}
	if inv.Status != StatusCompleted {
		t.Fatalf("status changed: got %s", inv.Status)
	}
	if inv.Notes == "" {
		t.Fatal("expected late event to be recorded in notes")
	}
}

func TestApplyTransitionLegalPath(t *testing.T) {
	inv := &Invoice{Status: StatusPending}

	if !applyTransition(inv, StatusProcessing, "") {
		t.Fatal("expected PENDING -> PROCESSING to succeed")
	}
	if !applyTransition(inv, StatusPaymentProcessing, "") {
		t.Fatal("expected PROCESSING -> PAYMENT_PROCESSING to succeed")
	}
	if !applyTransition(inv, StatusCompleted, "") {
		t.Fatal("expected PAYMENT_PROCESSING -> COMPLETED to succeed")
	}
	if inv.Status != StatusCompleted {
		t.Fatalf("final status = %s, want COMPLETED", inv.Status)
	}
}
