package main

import (
	"context"
	"errors"
	"testing"
)

func TestCheckAndDecrementHappyPath(t *testing.T) {
	store := newMemStore(&InventoryItem{ProductID: "p1", Name: "Widget", Quantity: 5, UnitPrice: 10})

	remaining, err := store.CheckAndDecrement(context.Background(), "p1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remaining != 3 {
		t.Fatalf("remaining = %d, want 3", remaining)
	}
}

func TestCheckAndDecrementInsufficientStock(t *testing.T) {
	store := newMemStore(&InventoryItem{ProductID: "p2", Name: "Gadget", Quantity: 0, UnitPrice: 5})

	_, err := store.CheckAndDecrement(context.Background(), "p2", 1)
	if err == nil {
		t.Fatal("expected insufficient-stock error")
	}
	var insufficient *ErrInsufficientStock
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestApplyCompensationIdempotent(t *testing.T) {
	store := newMemStore(&InventoryItem{ProductID: "p1", Name: "Widget", Quantity: 3, UnitPrice: 10})

	remaining, alreadyApplied, err := store.ApplyCompensation(context.Background(), "inv-1", "p1", 2, "restore_inventory")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alreadyApplied {
		t.Fatal("first delivery should not be marked alreadyApplied")
	}
	if remaining != 5 {
		t.Fatalf("remaining = %d, want 5", remaining)
	}

	remaining2, alreadyApplied2, err := store.ApplyCompensation(context.Background(), "inv-1", "p1", 2, "restore_inventory")
	if err != nil {
		t.Fatalf("unexpected error on redelivery: %v", err)
	}
	if !alreadyApplied2 {
		t.Fatal("redelivery should be short-circuited as alreadyApplied")
	}
	if remaining2 != 5 {
		t.Fatalf("redelivery must not double-credit stock: remaining = %d, want 5", remaining2)
	}
}

