package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ItemCache implements the Cache-Aside pattern for inventory items.
type ItemCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewItemCache(addr string, ttl time.Duration) (*ItemCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &ItemCache{client: client, ttl: ttl}, nil
}

func (c *ItemCache) Close() error { return c.client.Close() }

func (c *ItemCache) GetItem(ctx context.Context, productID string) (*InventoryItem, error) {
	key := "item:" + productID

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	var item InventoryItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return &item, nil
}

func (c *ItemCache) SetItem(ctx context.Context, item *InventoryItem) error {
	key := "item:" + item.ProductID

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (c *ItemCache) InvalidateItem(ctx context.Context, productID string) error {
	return c.client.Del(ctx, "item:"+productID).Err()
}
