// Package cache keeps ranked search results in Redis, keyed by site, index
// fingerprint and normalised query. Concurrent identical queries are
// collapsed with singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/sphinxdocs/search-mcp/internal/config"
	"github.com/sphinxdocs/search-mcp/internal/query"
)

const keyPrefix = "sxs:search:"

// Store is the key/value backend behind QueryCache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	Close() error
}

// RedisStore is a Store on go-redis.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection with a PING.
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

// DeletePrefix scans for keys starting with prefix and deletes them,
// returning the number of keys removed.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	var deleted int64
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("deleting key %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning prefix %s: %w", prefix, err)
	}
	return deleted, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Key identifies one cached search.
type Key struct {
	Site        string
	Fingerprint string
	Query       string
	Limit       int
	Kinds       []query.Kind
	Summaries   bool
}

func (k Key) String() string {
	kinds := make([]string, len(k.Kinds))
	for i, kind := range k.Kinds {
		kinds[i] = string(kind)
	}
	sort.Strings(kinds)

	raw := fmt.Sprintf("%s|%s|limit=%d|kinds=%s|summaries=%t",
		k.Fingerprint, normalizeQuery(k.Query), k.Limit, strings.Join(kinds, ","), k.Summaries)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, k.Site, hash[:16])
}

// normalizeQuery lowercases and collapses whitespace; word order matters to
// title matching so it is kept.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// QueryCache caches search results. A nil *QueryCache, or one without a
// store, computes every query.
type QueryCache struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a QueryCache over store.
func New(store Store, ttl time.Duration, logger *slog.Logger) *QueryCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryCache{
		store:  store,
		ttl:    ttl,
		logger: logger.With("component", "query-cache"),
	}
}

// Get returns the cached results for k.
func (c *QueryCache) Get(ctx context.Context, k Key) ([]query.Result, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	key := k.String()
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	var results []query.Result
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "site", k.Site, "query", k.Query)
	return results, true
}

// Set stores results for k.
func (c *QueryCache) Set(ctx context.Context, k Key, results []query.Result) {
	if c == nil || c.store == nil {
		return
	}
	key := k.String()
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns cached results for k or runs compute once for all
// concurrent callers asking for the same key. The boolean reports a cache
// hit.
func (c *QueryCache) GetOrCompute(ctx context.Context, k Key, compute func() ([]query.Result, error)) ([]query.Result, bool, error) {
	if c == nil {
		results, err := compute()
		return results, false, err
	}
	if results, ok := c.Get(ctx, k); ok {
		return results, true, nil
	}
	val, err, _ := c.group.Do(k.String(), func() (interface{}, error) {
		if results, ok := c.Get(ctx, k); ok {
			return results, nil
		}
		results, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, k, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]query.Result), false, nil
}

// InvalidateSite drops every cached result of site.
func (c *QueryCache) InvalidateSite(ctx context.Context, site string) error {
	if c == nil || c.store == nil {
		return nil
	}
	deleted, err := c.store.DeletePrefix(ctx, keyPrefix+site+":")
	if err != nil {
		return fmt.Errorf("invalidating cache for %s: %w", site, err)
	}
	c.logger.Info("cache invalidated", "site", site, "keys_deleted", deleted)
	return nil
}

// Stats returns hit and miss counts.
func (c *QueryCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// Close closes the store.
func (c *QueryCache) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}
