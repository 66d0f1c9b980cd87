package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/agri-weather-service/internal/models"
)

// Cache is the fast tier: a key-value store with per-entry TTL.
// Get returns (value, true, nil) on hit, (zero, false, nil) on miss or expiry.
type Cache interface {
	Get(ctx context.Context, key string) (models.ForecastResult, bool, error)
	Set(ctx context.Context, key string, value models.ForecastResult, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// InMemoryCache implements Cache using a mutex-guarded map with TTL-based expiration.
// Expired entries are removed on access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     models.ForecastResult
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return NewInMemoryCacheWithClock(time.Now)
}

// NewInMemoryCacheWithClock creates an in-memory cache that reads time from now.
func NewInMemoryCacheWithClock(now func() time.Time) *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  now,
	}
}

// Get retrieves the entry for key if present and not expired.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.ForecastResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.ForecastResult{}, false, nil
	}

	if !c.now().Before(entry.expiresAt) {
		delete(c.data, key)
		return models.ForecastResult{}, false, nil
	}

	return entry.value, true, nil
}

// Set stores value under key until ttl elapses.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.ForecastResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	return nil
}
