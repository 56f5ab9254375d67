package source

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/estimator"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/errors"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memCache) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *memCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// countingSource counts upstream fetches and can block them until released.
type countingSource struct {
	*Static
	calls   atomic.Int32
	release chan struct{}
}

func (c *countingSource) Fetch(ctx context.Context, node *query.Node) (estimator.Result, error) {
	c.calls.Add(1)
	if c.release != nil {
		<-c.release
	}
	return c.Static.Fetch(ctx, node)
}

type hitCounter struct {
	hits, misses atomic.Int32
}

func (h *hitCounter) ObserveCache(hit bool) {
	if hit {
		h.hits.Add(1)
	} else {
		h.misses.Add(1)
	}
}

func TestCachedServesRepeatFetchesFromCache(t *testing.T) {
	node := query.Term("crispr", query.FieldTiAb)
	src := &countingSource{Static: NewStatic("crossref", false).Add(node, estimator.Result{Count: 9, Identifiers: []string{"10.1000/a"}})}
	cache := newMemCache()
	obs := &hitCounter{}
	c := NewCached(src, cache, time.Hour, obs)

	for range 3 {
		res, err := c.Fetch(context.Background(), node)
		require.NoError(t, err)
		assert.Equal(t, 9, res.Count)
		assert.Equal(t, []string{"10.1000/a"}, res.Identifiers)
	}
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, int32(2), obs.hits.Load())
	assert.Equal(t, int32(1), obs.misses.Load())
	assert.Equal(t, time.Hour, cache.ttls[c.Key(node)])
	assert.Equal(t, "crossref", c.Platform())
	assert.False(t, c.SupportsBoolean())
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	src := &countingSource{Static: NewStatic("crossref", false)}
	cache := newMemCache()
	c := NewCached(src, cache, time.Hour, nil)

	for range 2 {
		_, err := c.Fetch(context.Background(), query.Term("missing", ""))
		assert.ErrorIs(t, err, apperrors.ErrNoResults)
	}
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Zero(t, cache.len())
}

func TestCachedCollapsesConcurrentFetches(t *testing.T) {
	node := query.Term("a", "")
	src := &countingSource{
		Static:  NewStatic("crossref", false).Add(node, estimator.Result{Count: 1}),
		release: make(chan struct{}),
	}
	c := NewCached(src, newMemCache(), time.Hour, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Fetch(context.Background(), node)
			assert.NoError(t, err)
			assert.Equal(t, 1, res.Count)
		}()
	}
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()
	assert.LessOrEqual(t, src.calls.Load(), int32(2))
}

func TestCachedDiscardsCorruptEntries(t *testing.T) {
	node := query.Term("a", "")
	src := &countingSource{Static: NewStatic("crossref", false).Add(node, estimator.Result{Count: 4})}
	cache := newMemCache()
	c := NewCached(src, cache, time.Hour, nil)
	require.NoError(t, cache.Set(context.Background(), c.Key(node), []byte("{not json"), 0))

	res, err := c.Fetch(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Count)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCacheKeyNormalisation(t *testing.T) {
	a := CacheKey("crossref", query.Term("CRISPR", ""))
	b := CacheKey("crossref", query.Term("crispr", ""))
	assert.Equal(t, a, b, "case folded")

	composed := CacheKey("crossref", query.Term("caf\u00e9", ""))
	decomposed := CacheKey("crossref", query.Term("cafe\u0301", ""))
	assert.Equal(t, composed, decomposed, "NFC normalised")

	assert.NotEqual(t, a, CacheKey("pubmed", query.Term("crispr", "")))
	assert.NotEqual(t, a, CacheKey("crossref", query.Term("crispr", query.FieldTitle)))
	assert.Regexp(t, `^yield:crossref:[0-9a-f]{64}$`, a)
}

func TestCachedInvalidate(t *testing.T) {
	cache := newMemCache()
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "yield:crossref:1", []byte("{}"), 0))
	require.NoError(t, cache.Set(ctx, "yield:crossref:2", []byte("{}"), 0))
	require.NoError(t, cache.Set(ctx, "yield:pubmed:1", []byte("{}"), 0))

	c := NewCached(NewStatic("crossref", false), cache, time.Hour, nil)
	n, err := c.Invalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, cache.len())
}

type failingFlush struct{ *memCache }

func (failingFlush) FlushByPattern(context.Context, string) (int64, error) {
	return 0, errors.New("redis down")
}

func TestCachedInvalidateError(t *testing.T) {
	c := NewCached(NewStatic("crossref", false), failingFlush{newMemCache()}, time.Hour, nil)
	_, err := c.Invalidate(context.Background())
	assert.ErrorContains(t, err, "redis down")
}
