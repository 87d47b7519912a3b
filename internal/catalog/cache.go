package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"musicroom/internal/metrics"
)

const (
	DefaultCacheTTL = 10 * time.Minute
	DefaultLRUSize  = 1024
)

func trackKey(id string) string { return "catalog:track:" + id }

func searchKey(query string, limit int) string {
	return fmt.Sprintf("catalog:search:%d:%s", limit, query)
}

// CachedProvider fronts a Provider with an in-process LRU and, when a
// redis client is given, a shared redis layer. Cache failures never fail
// a lookup; they fall through to the upstream.
type CachedProvider struct {
	upstream Provider
	rdb      *redis.Client
	ttl      time.Duration
	tracks   *lru.LRU[string, Track]
	searches *lru.LRU[string, []Track]
	metrics  *metrics.Metrics
}

func NewCachedProvider(upstream Provider, rdb *redis.Client, size int, ttl time.Duration, m *metrics.Metrics) *CachedProvider {
	if size <= 0 {
		size = DefaultLRUSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedProvider{
		upstream: upstream,
		rdb:      rdb,
		ttl:      ttl,
		tracks:   lru.NewLRU[string, Track](size, nil, ttl),
		searches: lru.NewLRU[string, []Track](size, nil, ttl),
		metrics:  m,
	}
}

func (c *CachedProvider) redisGet(ctx context.Context, key string, dst any) bool {
	if c.rdb == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
		}
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (c *CachedProvider) redisSet(ctx context.Context, key string, v any) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
	}
}

func (c *CachedProvider) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	limit = clampLimit(limit)
	key := searchKey(query, limit)

	if items, ok := c.searches.Get(key); ok {
		c.metrics.CacheLookup("memory", true)
		return items, nil
	}
	c.metrics.CacheLookup("memory", false)

	var items []Track
	if c.redisGet(ctx, key, &items) {
		c.metrics.CacheLookup("redis", true)
		c.searches.Add(key, items)
		return items, nil
	}
	c.metrics.CacheLookup("redis", false)

	items, err := c.upstream.SearchTracks(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	c.searches.Add(key, items)
	c.redisSet(ctx, key, items)
	for _, t := range items {
		c.tracks.Add(t.ID, t)
	}
	return items, nil
}

// LookupTracks serves what it can from the caches and asks the upstream
// only for the remaining ids.
func (c *CachedProvider) LookupTracks(ctx context.Context, ids []string) (map[string]Track, error) {
	out := make(map[string]Track, len(ids))
	var missing []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if t, ok := c.tracks.Get(id); ok {
			c.metrics.CacheLookup("memory", true)
			out[id] = t
			continue
		}
		c.metrics.CacheLookup("memory", false)
		var t Track
		if c.redisGet(ctx, trackKey(id), &t) {
			c.metrics.CacheLookup("redis", true)
			c.tracks.Add(id, t)
			out[id] = t
			continue
		}
		c.metrics.CacheLookup("redis", false)
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.upstream.LookupTracks(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, t := range fetched {
		c.tracks.Add(id, t)
		c.redisSet(ctx, trackKey(id), t)
		out[id] = t
	}
	return out, nil
}
