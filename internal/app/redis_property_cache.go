package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tmasaiti/zimproperty/internal/domain"
)

const cacheScanCount = 100

// RedisPropertyCache keeps browse results for a short TTL. Every listing
// change drops all cached pages.
type RedisPropertyCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisPropertyCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisPropertyCache {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "zimproperty"
	}
	return &RedisPropertyCache{
		client: client,
		prefix: trimmedPrefix + ":properties",
		ttl:    ttl,
	}
}

// propertyCacheKey hashes the filter so equivalent queries share a key. Text
// values are hashed exactly as the repository compares them.
func propertyCacheKey(prefix string, filter domain.PropertyFilter) string {
	params := map[string]string{}
	if filter.Type != nil {
		params["type"] = string(*filter.Type)
	}
	if filter.Location != nil {
		params["location"] = *filter.Location
	}
	if filter.MinPrice != nil {
		params["minPrice"] = filter.MinPrice.String()
	}
	if filter.MaxPrice != nil {
		params["maxPrice"] = filter.MaxPrice.String()
	}
	if filter.Status != nil {
		params["status"] = string(*filter.Status)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for i, k := range keys {
		if i > 0 {
			builder.WriteString(":")
		}
		builder.WriteString(k)
		builder.WriteString("=")
		builder.WriteString(params[k])
	}

	sum := sha256.Sum256([]byte(builder.String()))
	return prefix + ":" + hex.EncodeToString(sum[:])
}

func (c *RedisPropertyCache) Get(ctx context.Context, filter domain.PropertyFilter) ([]domain.Property, bool, error) {
	data, err := c.client.Get(ctx, propertyCacheKey(c.prefix, filter)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var properties []domain.Property
	if err := json.Unmarshal(data, &properties); err != nil {
		return nil, false, err
	}
	return properties, true, nil
}

func (c *RedisPropertyCache) Set(ctx context.Context, filter domain.PropertyFilter, properties []domain.Property) error {
	if c.ttl <= 0 {
		return nil
	}
	if properties == nil {
		properties = []domain.Property{}
	}
	data, err := json.Marshal(properties)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, propertyCacheKey(c.prefix, filter), data, c.ttl).Err()
}

// Invalidate deletes every cached browse page.
func (c *RedisPropertyCache) Invalidate(ctx context.Context) error {
	pattern := c.prefix + ":*"

	var keys []string
	var cursor uint64
	for {
		batch, next, err := c.client.Scan(ctx, cursor, pattern, cacheScanCount).Result()
		if err != nil {
			return err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	log.Printf("level=info component=property_cache msg=\"cache invalidated\" keys=%d", len(keys))
	return nil
}
