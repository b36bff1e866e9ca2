package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ecowatch/air-quality-service/internal/cache"
	"github.com/ecowatch/air-quality-service/internal/cities"
	"github.com/ecowatch/air-quality-service/internal/models"
	"github.com/ecowatch/air-quality-service/internal/observability"
	"github.com/ecowatch/air-quality-service/internal/provider"
)

var (
	// ErrUnknownCity means the requested id is not in the static registry.
	ErrUnknownCity = errors.New("unknown city")
	// ErrNoProviderAvailable means every configured provider was tried and
	// failed for this city. Terminal for the request; a later request may
	// hit a populated cache or a recovered provider.
	ErrNoProviderAvailable = errors.New("no provider available")
	// ErrNoProviderConfigured means no provider API key is present at all.
	// Kept distinct from ErrNoProviderAvailable so operators can tell
	// misconfiguration from an upstream outage.
	ErrNoProviderConfigured = errors.New("no provider configured")
)

// Aggregator resolves per-city air-quality records: cache first, then the
// configured providers in order. The provider chain is data, not control
// flow; adding a third provider is a wiring change in main.
type Aggregator struct {
	cache     cache.Cache
	providers []provider.Reader
	ttl       time.Duration
	pacer     Pacer
	coalescer *coalescer // nil when coalescing is disabled
	logger    *zap.Logger
}

// New creates an Aggregator. providers are tried in slice order; an empty
// slice means no provider key was configured. pacer spaces upstream fetches
// during bulk operations.
func New(c cache.Cache, providers []provider.Reader, ttl time.Duration, pacer Pacer, logger *zap.Logger) *Aggregator {
	if pacer == nil {
		pacer = NewDelayPacer(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cache:     c,
		providers: providers,
		ttl:       ttl,
		pacer:     pacer,
		logger:    logger,
	}
}

// EnableCoalescing makes concurrent cache misses for the same city share one
// upstream fetch. timeout bounds how long a waiter blocks on another caller's
// flight. Call before serving requests.
func (a *Aggregator) EnableCoalescing(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	a.coalescer = newCoalescer(timeout)
}

// Get resolves the air-quality record for one city.
func (a *Aggregator) Get(ctx context.Context, cityID string) (models.AirQualityRecord, error) {
	city, ok := cities.Lookup(cityID)
	if !ok {
		return models.AirQualityRecord{}, fmt.Errorf("%w: %s", ErrUnknownCity, cityID)
	}
	rec, _, err := a.resolve(ctx, city)
	return rec, err
}

// resolve performs the cache-then-fallback-chain resolution for one city.
// fromCache reports whether the record was served without an upstream
// attempt; GetAll uses it to decide whether to pace.
func (a *Aggregator) resolve(ctx context.Context, city cities.City) (models.AirQualityRecord, bool, error) {
	observability.AirQualityQueriesTotal.Inc()

	cached, ok, err := a.cache.Get(ctx, city.ID)
	if err != nil {
		a.logger.Warn("cache get failed", zap.String("city", city.ID), zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues("air_quality").Inc()
		a.logger.Debug("cache hit", zap.String("city", city.ID), zap.Int("aqi", cached.AQI))
		return cached, true, nil
	}

	if len(a.providers) == 0 {
		return models.AirQualityRecord{}, false, ErrNoProviderConfigured
	}

	if a.coalescer != nil {
		rec, shared, err := a.coalescer.Do(ctx, city.ID, func() (models.AirQualityRecord, error) {
			return a.fetchAndStore(ctx, city)
		})
		if shared {
			observability.CoalescedRequestsTotal.Inc()
			a.logger.Debug("coalesced into in-flight fetch", zap.String("city", city.ID))
		}
		return rec, false, err
	}

	rec, err := a.fetchAndStore(ctx, city)
	return rec, false, err
}

// fetchAndStore runs the provider chain for one city and writes the winning
// record through to the cache. One flight of this is what concurrent callers
// share when coalescing is enabled.
func (a *Aggregator) fetchAndStore(ctx context.Context, city cities.City) (models.AirQualityRecord, error) {
	for i, p := range a.providers {
		rec, err := p.Record(ctx, city)
		if err != nil {
			a.logger.Debug("provider failed",
				zap.String("city", city.ID),
				zap.String("provider", string(p.Source())),
				zap.Error(err))
			continue
		}
		if i > 0 {
			observability.ProviderFallbacksTotal.Inc()
		}

		if setErr := a.cache.Set(ctx, city.ID, rec, a.ttl); setErr != nil {
			a.logger.Warn("cache set failed", zap.String("city", city.ID), zap.Error(setErr))
		}
		a.logger.Debug("air quality resolved",
			zap.String("city", city.ID),
			zap.String("provider", string(p.Source())),
			zap.Int("aqi", rec.AQI),
			zap.String("status", string(rec.Status)))
		return rec, nil
	}

	return models.AirQualityRecord{}, fmt.Errorf("%w: %s", ErrNoProviderAvailable, city.ID)
}

// GetAll resolves records for every registered city in registry order.
// Cities that cannot be resolved are omitted rather than failing the batch;
// partial success is the expected steady state. Upstream fetches are paced
// to stay under provider rate limits, while cache hits incur no delay.
// Fails fast with ErrNoProviderConfigured when no provider key is present.
func (a *Aggregator) GetAll(ctx context.Context) ([]models.AirQualityRecord, error) {
	if len(a.providers) == 0 {
		return nil, ErrNoProviderConfigured
	}

	out := make([]models.AirQualityRecord, 0, cities.Count())
	for _, city := range cities.All() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, fromCache, err := a.resolve(ctx, city)
		if err != nil {
			observability.BulkOmittedCitiesTotal.Inc()
			a.logger.Debug("city omitted from bulk result",
				zap.String("city", city.ID), zap.Error(err))
		} else {
			out = append(out, rec)
		}

		if !fromCache {
			if err := a.pacer.Pause(ctx); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Configured reports whether at least one provider is in the fallback chain.
// Used by the health endpoint.
func (a *Aggregator) Configured() bool {
	return len(a.providers) > 0
}
