package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/attestlabs/attest/internal/store"
)

// AnalysisCache is a read-through cache of completed analyses in front of
// the API. A miss returns (nil, nil).
type AnalysisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(redisURL string, ttl time.Duration) (*AnalysisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &AnalysisCache{client: redis.NewClient(opts), ttl: ttl}, nil
}

func (c *AnalysisCache) Close() error {
	return c.client.Close()
}

func (c *AnalysisCache) key(id uuid.UUID) string {
	return "analysis:" + id.String()
}

// Get returns a cached analysis record, or nil on miss.
func (c *AnalysisCache) Get(ctx context.Context, id uuid.UUID) (*store.AnalysisRecord, error) {
	data, err := c.client.Get(ctx, c.key(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec store.AnalysisRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Set caches a completed analysis record.
func (c *AnalysisCache) Set(ctx context.Context, rec *store.AnalysisRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(rec.ID), data, c.ttl).Err()
}

// Invalidate drops a cached record, e.g. when a transcript is re-analyzed.
func (c *AnalysisCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, c.key(id)).Err()
}
