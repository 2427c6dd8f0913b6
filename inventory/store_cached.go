package main

import (
	"context"
	"log/slog"
)

// CachedStore wraps PostgresStore with the Redis Cache-Aside pattern for
// reads; writes always go straight to Postgres (the guarded predicate
// needs a fresh row) and then invalidate the cache entry.
type CachedStore struct {
	store  *PostgresStore
	cache  *ItemCache
	logger *slog.Logger
}

func NewCachedStore(store *PostgresStore, cache *ItemCache, logger *slog.Logger) *CachedStore {
	return &CachedStore{store: store, cache: cache, logger: logger}
}

func (s *CachedStore) GetItem(ctx context.Context, productID string) (*InventoryItem, error) {
	cached, err := s.cache.GetItem(ctx, productID)
	if err != nil {
		s.logger.Warn("cache read failed, falling back to postgres", slog.String("product_id", productID), slog.Any("error", err))
	} else if cached != nil {
		return cached, nil
	}

	item, err := s.store.GetItem(ctx, productID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetItem(ctx, item); err != nil {
		s.logger.Warn("cache populate failed", slog.String("product_id", productID), slog.Any("error", err))
	}
	return item, nil
}

func (s *CachedStore) ListItems(ctx context.Context) ([]*InventoryItem, error) {
	// bulk listing bypasses the per-key cache; it's used by the admin
	// surface, not the hot decrement path
	return s.store.ListItems(ctx)
}

func (s *CachedStore) CheckAndDecrement(ctx context.Context, productID string, amount int) (int, error) {
	remaining, err := s.store.CheckAndDecrement(ctx, productID, amount)
	if err != nil {
		return 0, err
	}
	if err := s.cache.InvalidateItem(ctx, productID); err != nil {
		s.logger.Warn("cache invalidate failed", slog.String("product_id", productID), slog.Any("error", err))
	}
	return remaining, nil
}

func (s *CachedStore) ApplyCompensation(ctx context.Context, invoiceID, productID string, amount int, compensationType string) (int, bool, error) {
	remaining, alreadyApplied, err := s.store.ApplyCompensation(ctx, invoiceID, productID, amount, compensationType)
	if err != nil {
		return 0, false, err
	}
	if !alreadyApplied {
		if err := s.cache.InvalidateItem(ctx, productID); err != nil {
			s.logger.Warn("cache invalidate failed", slog.String("product_id", productID), slog.Any("error", err))
		}
	}
	return remaining, alreadyApplied, nil
}

var _ InventoryStore = (*CachedStore)(nil)
