package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey = "catalog:version"
	// BumpChannel carries the new cache version after each ingestion.
	BumpChannel = "catalog.bump"
)

// Cache wraps Redis based caching with versioning controls. Bumping the version
// orphans every key built before it.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// Get decodes the cached value at key into dest. The boolean is false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value at key with the cache TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump invalidates the cache by incrementing the version and publishing it.
func (c *Cache) Bump(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return 0, err
	}
	if err := c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err(); err != nil {
		return ver, err
	}
	return ver, nil
}

// ListenForInvalidation subscribes to version bumps and calls onBump for each
// one until ctx is done.
func (c *Cache) ListenForInvalidation(ctx context.Context, onBump func(version int64)) error {
	if c == nil || c.client == nil || onBump == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, BumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				onBump(ver)
			}
		}
	}()
	return nil
}

// RecordSource loads the full record set.
type RecordSource interface {
	FetchRecords(ctx context.Context) ([]Record, error)
}

// CachedFetcher serves FetchRecords from the versioned cache and collapses
// concurrent misses into one load. Cache outages fall through to the source.
type CachedFetcher struct {
	source RecordSource
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedFetcher wraps source with cache.
func NewCachedFetcher(source RecordSource, cache *Cache, logger *slog.Logger) *CachedFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedFetcher{source: source, cache: cache, logger: logger}
}

// FetchRecords returns the cached record set for the current version, loading
// it from the source on a miss.
func (f *CachedFetcher) FetchRecords(ctx context.Context) ([]Record, error) {
	key, err := f.cache.BuildKey(ctx, "catalog", "records")
	if err != nil {
		f.logger.Warn("catalog cache unavailable", slog.Any("error", err))
		return f.source.FetchRecords(ctx)
	}
	result, err, _ := f.group.Do(key, func() (interface{}, error) {
		var cached []Record
		hit, err := f.cache.Get(ctx, key, &cached)
		if err != nil {
			f.logger.Warn("catalog cache read", slog.String("key", key), slog.Any("error", err))
		}
		if hit {
			return cached, nil
		}
		records, err := f.source.FetchRecords(ctx)
		if err != nil {
			return nil, err
		}
		if err := f.cache.Set(ctx, key, records); err != nil {
			f.logger.Warn("catalog cache write", slog.String("key", key), slog.Any("error", err))
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]Record), nil
}
