package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// SnapshotCache keeps the last known-good snapshot set across restarts.
type SnapshotCache interface {
	Load(ctx context.Context) ([]VehicleSnapshot, error)
	Store(ctx context.Context, snapshots []VehicleSnapshot) error
	Close() error
}

type redisCache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func newRedisCache(ctx context.Context, addr, key string, ttl time.Duration) (*redisCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &redisCache{rdb: rdb, key: key, ttl: ttl}, nil
}

// Load returns nil, nil when nothing is cached.
func (c *redisCache) Load(ctx context.Context) ([]VehicleSnapshot, error) {
	b, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", c.key, err)
	}
	var out []VehicleSnapshot
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode cached snapshots: %w", err)
	}
	return out, nil
}

func (c *redisCache) Store(ctx context.Context, snapshots []VehicleSnapshot) error {
	b, err := json.Marshal(snapshots)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, c.key, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key, err)
	}
	return nil
}

func (c *redisCache) Close() error { return c.rdb.Close() }

// seedFromCache loads cached snapshots into the dashboard, if any.
func seedFromCache(ctx context.Context, log *slog.Logger, cache SnapshotCache, d *Dashboard) {
	snaps, err := cache.Load(ctx)
	if err != nil {
		log.Warn("snapshot cache load failed", "err", err)
		return
	}
	if len(snaps) == 0 {
		return
	}
	d.Seed(snaps)
	log.Info("seeded dashboard from cache", "vehicles", len(snaps))
}

// cacheOnFleet stores every published snapshot set.
func cacheOnFleet(log *slog.Logger, cache SnapshotCache, timeout time.Duration) func(FleetUpdate) {
	return func(u FleetUpdate) {
		if !u.Published || u.Degraded {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := cache.Store(ctx, u.Snapshots); err != nil {
			log.Warn("snapshot cache store failed", "err", err)
		}
	}
}
