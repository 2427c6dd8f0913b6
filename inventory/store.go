package main

import (
	"context"
	"sync"
)

// memStore is an in-memory InventoryStore used by unit tests that need a
// real (if non-persistent) implementation of the decrement/compensation
// semantics without a live Postgres.
type memStore struct {
	mu            sync.Mutex
	items         map[string]*InventoryItem
	compensations map[string]bool // key: invoiceID|productID|compensationType
}

func newMemStore(items ...*InventoryItem) *memStore {
	m := &memStore{items: map[string]*InventoryItem{}, compensations: map[string]bool{}}
	for _, i := range items {
		m.items[i.ProductID] = i
	}
	return m
}

func (s *memStore) GetItem(ctx context.Context, productID string) (*InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[productID]
	if !ok {
		return nil, &ErrNotFound{ProductID: productID}
	}
	cp := *item
	return &cp, nil
}

func (s *memStore) ListItems(ctx context.Context) ([]*InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*InventoryItem
	for _, item := range s.items {
		cp := *item
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) CheckAndDecrement(ctx context.Context, productID string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[productID]
	if !ok {
		return 0, &ErrNotFound{ProductID: productID}
	}
	if item.Quantity < amount {
		return 0, &ErrInsufficientStock{ProductID: productID, Requested: amount}
	}
	item.Quantity -= amount
	return item.Quantity, nil
}

func (s *memStore) ApplyCompensation(ctx context.Context, invoiceID, productID string, amount int, compensationType string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := invoiceID + "|" + productID + "|" + compensationType
	item, ok := s.items[productID]
	if !ok {
		return 0, false, &ErrNotFound{ProductID: productID}
	}
	if s.compensations[key] {
		return item.Quantity, true, nil
	}
	s.compensations[key] = true
	item.Quantity += amount
	return item.Quantity, false, nil
}

var _ InventoryStore = (*memStore)(nil)
