package services

import (
	"sort"
	"sync"
	"time"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/sirupsen/logrus"
)

// AllotmentCache is a read-through cache of allotment results keyed by (ipoId, identity hash).
// Freshness is judged by the result's own CheckedAt, so a cached result is returned unchanged.
type AllotmentCache struct {
	cache   map[string]models.AllotmentResult
	mutex   sync.RWMutex
	ttl     time.Duration
	maxSize int
	clock   func() time.Time
}

// NewAllotmentCache creates a cache with the given TTL and capacity
func NewAllotmentCache(ttl time.Duration, maxSize int) *AllotmentCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &AllotmentCache{
		cache:   make(map[string]models.AllotmentResult),
		ttl:     ttl,
		maxSize: maxSize,
		clock:   time.Now,
	}
}

// SetClock overrides the time source, used by tests to move past the TTL
func (c *AllotmentCache) SetClock(clock func() time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.clock = clock
}

// CacheKey builds the cache key for an IPO and an identity hash
func CacheKey(ipoID, panHash string) string {
	return ipoID + ":" + panHash
}

func (c *AllotmentCache) isStale(result models.AllotmentResult) bool {
	return c.clock().UnixMilli()-result.CheckedAt > c.ttl.Milliseconds()
}

// Get returns a fresh cached result for key
func (c *AllotmentCache) Get(key string) (models.AllotmentResult, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result, exists := c.cache[key]
	if !exists || c.isStale(result) {
		return models.AllotmentResult{}, false
	}
	return cloneResult(result), true
}

// Set stores a copy of result under key, replacing any previous value
func (c *AllotmentCache) Set(key string, result models.AllotmentResult) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.cache[key]; !exists && len(c.cache) >= c.maxSize {
		c.evictOldest()
	}
	c.cache[key] = cloneResult(result)
}

// evictOldest removes the entry with the oldest CheckedAt
func (c *AllotmentCache) evictOldest() {
	var oldestKey string
	var oldest int64

	for key, result := range c.cache {
		if oldestKey == "" || result.CheckedAt < oldest {
			oldestKey = key
			oldest = result.CheckedAt
		}
	}

	if oldestKey != "" {
		delete(c.cache, oldestKey)
	}
}

// CleanupExpired drops stale entries and returns how many were removed
func (c *AllotmentCache) CleanupExpired() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	removed := 0
	for key, result := range c.cache {
		if c.isStale(result) {
			delete(c.cache, key)
			removed++
		}
	}

	if removed > 0 {
		logrus.WithFields(logrus.Fields{
			"component": "AllotmentCache",
			"removed":   removed,
			"remaining": len(c.cache),
		}).Debug("Removed expired allotment results")
	}
	return removed
}

// Clear removes all values from cache
func (c *AllotmentCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache = make(map[string]models.AllotmentResult)
}

// Size returns the number of items in cache
func (c *AllotmentCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.cache)
}

// Keys returns the cached keys in sorted order
func (c *AllotmentCache) Keys() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	keys := make([]string, 0, len(c.cache))
	for key := range c.cache {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
