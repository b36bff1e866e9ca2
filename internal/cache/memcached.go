package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/ecowatch/air-quality-service/internal/models"
)

const keyPrefix = "aqi:"

// MemcachedCache implements Cache using memcached. Useful when several
// service replicas should share one upstream quota.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns fall back to package defaults when zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(cityID string) string {
	return keyPrefix + cityID
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on
// backend error.
func (c *MemcachedCache) Get(ctx context.Context, cityID string) (models.AirQualityRecord, bool, error) {
	if ctx.Err() != nil {
		return models.AirQualityRecord{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(cityID))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return models.AirQualityRecord{}, false, nil
		}
		return models.AirQualityRecord{}, false, err
	}
	var rec models.AirQualityRecord
	if err := json.Unmarshal(item.Value, &rec); err != nil {
		return models.AirQualityRecord{}, false, err
	}
	return rec, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, cityID string, rec models.AirQualityRecord, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	expSec := int32(ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 300 // fallback 5m if invalid
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(cityID),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
