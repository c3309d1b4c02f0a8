// Package archive keeps finished import results in Redis so they outlive
// the in-memory session and survive restarts.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/inventory/internal/core"
)

// DefaultPrefix namespaces archive keys when no prefix is configured.
const DefaultPrefix = "inventory"

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisArchive stores import results as JSON values with a TTL.
// It satisfies core.ResultArchive.
type RedisArchive struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisArchive wraps a client. A zero ttl keeps results forever.
func NewRedisArchive(client redis.Cmdable, prefix string, ttl time.Duration) *RedisArchive {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisArchive{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the Redis key holding an import result.
func (a *RedisArchive) Key(importID string) string {
	return fmt.Sprintf("%s:import:%s", a.prefix, importID)
}

// Save writes the result, replacing any previous value.
func (a *RedisArchive) Save(ctx context.Context, result *core.ImportResult) error {
	if result == nil || result.ImportID == "" {
		return errors.New("archive: result without import id")
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	if err := a.client.Set(ctx, a.Key(result.ImportID), data, a.ttl).Err(); err != nil {
		return fmt.Errorf("save result %s: %w", result.ImportID, err)
	}
	return nil
}

// Load reads a result. Missing or expired keys return core.ErrImportNotFound.
func (a *RedisArchive) Load(ctx context.Context, importID string) (*core.ImportResult, error) {
	data, err := a.client.Get(ctx, a.Key(importID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrImportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load result %s: %w", importID, err)
	}

	var result core.ImportResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", importID, err)
	}
	return &result, nil
}
