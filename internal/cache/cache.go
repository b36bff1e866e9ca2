package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ecowatch/air-quality-service/internal/models"
)

// Cache is the per-city memoization of the last successful aggregation
// result. Get returns the cached record if present and not expired; Set
// unconditionally supersedes any existing entry.
type Cache interface {
	Get(ctx context.Context, cityID string) (models.AirQualityRecord, bool, error)
	Set(ctx context.Context, cityID string, rec models.AirQualityRecord, ttl time.Duration) error
}

// InMemoryCache implements Cache with a map and lazy TTL expiry: expired
// entries are dropped on access, there is no background sweep. The key space
// is bounded by the city registry, so entries are never evicted for size.
// Safe for concurrent use by request handlers.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]entry
}

// entry pairs a record with its fetch time. Entries are immutable once
// stored; a refresh writes a new entry.
type entry struct {
	rec       models.AirQualityRecord
	fetchedAt time.Time
	ttl       time.Duration
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]entry),
	}
}

// Get retrieves the cached record for cityID if present and fresher than its
// TTL. Returns (rec, true, nil) on hit, (zero, false, nil) on miss or
// expiry. Expired entries are removed on access.
func (c *InMemoryCache) Get(ctx context.Context, cityID string) (models.AirQualityRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[cityID]
	if !ok {
		return models.AirQualityRecord{}, false, nil
	}

	if time.Since(e.fetchedAt) >= e.ttl {
		delete(c.data, cityID)
		return models.AirQualityRecord{}, false, nil
	}

	return e.rec, true, nil
}

// Set stores rec for cityID with the given ttl, superseding any previous
// entry.
func (c *InMemoryCache) Set(ctx context.Context, cityID string, rec models.AirQualityRecord, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[cityID] = entry{
		rec:       rec,
		fetchedAt: time.Now(),
		ttl:       ttl,
	}
	return nil
}
