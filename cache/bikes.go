package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bikerental/models"

	"github.com/redis/go-redis/v9"
)

const (
	bikeGenKey  = "bikes:gen"
	bikeListKey = "bikes:list"
	defaultTTL  = 30 * time.Second
)

// BikeCache keeps one Redis key per (generation, filter). Invalidate bumps the
// generation, so a listing read from the store before an invalidation is written
// under a generation nobody reads anymore and simply expires.
type BikeCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewBikeCache(rdb *redis.Client, ttl time.Duration) *BikeCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &BikeCache{rdb: rdb, ttl: ttl}
}

func listKey(gen int64, filter models.BikeFilter) string {
	return fmt.Sprintf("%s:%d:status=%s&type=%s", bikeListKey, gen, filter.Status, filter.Type)
}

func (c *BikeCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, bikeGenKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get %s: %w", bikeGenKey, err)
	}
	return gen, nil
}

// GetBikes returns the cached listing and the generation it was looked up under.
// On a miss the generation is what SetBikes must be given.
func (c *BikeCache) GetBikes(ctx context.Context, filter models.BikeFilter) ([]models.Bike, bool, int64, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, false, 0, err
	}

	key := listKey(gen, filter)
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, gen, nil
		}
		return nil, false, 0, fmt.Errorf("redis get %s: %w", key, err)
	}

	var bikes []models.Bike
	if err := json.Unmarshal(data, &bikes); err != nil {
		return nil, false, 0, fmt.Errorf("decode cached bikes: %w", err)
	}
	return bikes, true, gen, nil
}

// SetBikes stores a listing under gen. Each key carries its own TTL.
func (c *BikeCache) SetBikes(ctx context.Context, gen int64, filter models.BikeFilter, bikes []models.Bike) error {
	data, err := json.Marshal(bikes)
	if err != nil {
		return fmt.Errorf("encode bikes: %w", err)
	}

	key := listKey(gen, filter)
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Invalidate starts a new generation; older listings are never served again.
func (c *BikeCache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, bikeGenKey).Err(); err != nil {
		return fmt.Errorf("redis incr %s: %w", bikeGenKey, err)
	}
	return nil
}
