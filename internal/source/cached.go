package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/estimator"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/query"
)

// Cache is the subset of the Redis client the decorator needs. Get returns
// nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// CacheObserver is notified of every lookup.
type CacheObserver interface {
	ObserveCache(hit bool)
}

const cachePrefix = "yield:"

// Cached decorates a Source with a shared result cache. Concurrent fetches
// of the same query collapse into one upstream call. Failures are never
// cached.
type Cached struct {
	Source
	cache    Cache
	ttl      time.Duration
	group    singleflight.Group
	observer CacheObserver
	logger   *slog.Logger
}

func NewCached(src Source, cache Cache, ttl time.Duration, observer CacheObserver) *Cached {
	return &Cached{
		Source:   src,
		cache:    cache,
		ttl:      ttl,
		observer: observer,
		logger:   slog.Default().With("component", "source-cache", "platform", src.Platform()),
	}
}

type Source = estimator.Source

// Key returns the cache key for node on this platform.
func (c *Cached) Key(node *query.Node) string {
	return CacheKey(c.Platform(), node)
}

// CacheKey hashes the platform together with a normalised rendering of node.
func CacheKey(platform string, node *query.Node) string {
	rendered := norm.NFC.String(node.String(query.SyntaxGeneric))
	rendered = cases.Fold().String(rendered)
	sum := sha256.Sum256([]byte(platform + "\x00" + rendered))
	return cachePrefix + platform + ":" + hex.EncodeToString(sum[:])
}

func (c *Cached) Fetch(ctx context.Context, node *query.Node) (estimator.Result, error) {
	key := c.Key(node)
	if res, ok := c.lookup(ctx, key); ok {
		return res, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := c.Source.Fetch(ctx, node)
		if err != nil {
			return estimator.Result{}, err
		}
		c.store(ctx, key, res)
		return res, nil
	})
	if err != nil {
		return estimator.Result{}, err
	}
	return v.(estimator.Result), nil
}

func (c *Cached) lookup(ctx context.Context, key string) (estimator.Result, bool) {
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
	}
	if data == nil {
		c.observe(false)
		return estimator.Result{}, false
	}
	var res estimator.Result
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Warn("discarding corrupt cache entry", "key", key, "error", err)
		c.observe(false)
		return estimator.Result{}, false
	}
	c.observe(true)
	return res, true
}

func (c *Cached) store(ctx context.Context, key string, res estimator.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func (c *Cached) observe(hit bool) {
	if c.observer != nil {
		c.observer.ObserveCache(hit)
	}
}

// Invalidate drops every cached result for this platform.
func (c *Cached) Invalidate(ctx context.Context) (int64, error) {
	n, err := c.cache.FlushByPattern(ctx, cachePrefix+c.Platform()+":*")
	if err != nil {
		return n, fmt.Errorf("invalidating %s cache: %w", c.Platform(), err)
	}
	c.logger.Info("cache invalidated", "keys", n)
	return n, nil
}
