// Package cache keeps hot single-listing reads in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bullaburg/game-saviour/internal/model"
)

const DefaultListingTTL = 5 * time.Minute

// NewClient dials Redis and fails fast when it is unreachable.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping redis %s: %w", addr, err)
	}

	return client, nil
}

// ListingCache stores listings as JSON under "listing:<id>".
type ListingCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewListingCache(client *redis.Client, ttl time.Duration) *ListingCache {
	if ttl <= 0 {
		ttl = DefaultListingTTL
	}
	return &ListingCache{client: client, ttl: ttl}
}

// GetListing returns (nil, nil) on a miss.
func (c *ListingCache) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	data, err := c.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get listing %s: %w", id, err)
	}

	var listing model.Listing
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, fmt.Errorf("cache: decode listing %s: %w", id, err)
	}
	return &listing, nil
}

func (c *ListingCache) SetListing(ctx context.Context, listing *model.Listing) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("cache: encode listing %s: %w", listing.ID, err)
	}
	if err := c.client.Set(ctx, key(listing.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set listing %s: %w", listing.ID, err)
	}
	return nil
}

func (c *ListingCache) DeleteListing(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("cache: delete listing %s: %w", id, err)
	}
	return nil
}

func key(id string) string {
	return "listing:" + id
}
