package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultCache remembers the latest event per transaction so late websocket
// subscribers can be brought up to date
type ResultCache interface {
	EventSink
	Latest(ctx context.Context, transactionID string) (TransactionEvent, bool, error)
}

func resultKey(transactionID string) string {
	return "payment_result:" + transactionID
}

type RedisResultCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisResultCache(rdb *redis.Client, ttl time.Duration) *RedisResultCache {
	return &RedisResultCache{rdb: rdb, ttl: ttl}
}

// NewRedisClient connects using cfg and checks the server answers
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

func (c *RedisResultCache) Publish(ctx context.Context, ev TransactionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := c.rdb.Set(ctx, resultKey(ev.TransactionID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache result %s: %w", ev.TransactionID, err)
	}
	return nil
}

func (c *RedisResultCache) Latest(ctx context.Context, transactionID string) (TransactionEvent, bool, error) {
	cached, err := c.rdb.Get(ctx, resultKey(transactionID)).Result()
	if errors.Is(err, redis.Nil) {
		return TransactionEvent{}, false, nil
	}
	if err != nil {
		return TransactionEvent{}, false, fmt.Errorf("read cached result %s: %w", transactionID, err)
	}

	var ev TransactionEvent
	if err := json.Unmarshal([]byte(cached), &ev); err != nil {
		return TransactionEvent{}, false, fmt.Errorf("decode cached result %s: %w", transactionID, err)
	}
	return ev, true, nil
}

// nopResultCache is used when Redis is not configured
type nopResultCache struct{}

func (nopResultCache) Publish(context.Context, TransactionEvent) error { return nil }

func (nopResultCache) Latest(context.Context, string) (TransactionEvent, bool, error) {
	return TransactionEvent{}, false, nil
}
