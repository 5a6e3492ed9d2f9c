package main

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

type cacheEntry struct {
	results   []Result
	createdAt time.Time
}

type CacheStats struct {
	Size       int     `json:"size"`
	MaxSize    int     `json:"max_size"`
	Hits       int     `json:"hits"`
	Misses     int     `json:"misses"`
	HitRate    float64 `json:"hit_rate_percent"`
	TTLSeconds int     `json:"ttl_seconds"`
}

// QueryCache memoizes search results per (query, k) pair with a TTL. When
// full it evicts the oldest-inserted entry. That is deliberately FIFO, not
// LRU: a popular entry can be evicted while an idle one survives, which is
// acceptable for a cache that gets cleared on every index write anyway.
type QueryCache struct {
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string
	hits    int
	misses  int
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	return &QueryCache{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(query string, k int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s::%d", query, k)))
	return hex.EncodeToString(sum[:])
}

func (c *QueryCache) Get(query string, k int) ([]Result, bool) {
	key := cacheKey(query, k)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	if c.now().Sub(entry.createdAt) > c.ttl {
		c.evict(key)
		c.misses++
		return nil, false
	}

	c.hits++
	return entry.results, true
}

func (c *QueryCache) Set(query string, k int, results []Result) {
	key := cacheKey(query, k)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = cacheEntry{results: results, createdAt: c.now()}
		return
	}

	if len(c.entries) >= c.maxSize && len(c.order) > 0 {
		c.evict(c.order[0])
	}

	c.entries[key] = cacheEntry{results: results, createdAt: c.now()}
	c.order = append(c.order, key)
}

func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
	c.order = nil
}

func (c *QueryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hitRate float64
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total) * 100
	}

	return CacheStats{
		Size:       len(c.entries),
		MaxSize:    c.maxSize,
		Hits:       c.hits,
		Misses:     c.misses,
		HitRate:    hitRate,
		TTLSeconds: int(c.ttl / time.Second),
	}
}

func (c *QueryCache) evict(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
