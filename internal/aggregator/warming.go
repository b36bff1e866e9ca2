package aggregator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ecowatch/air-quality-service/internal/cities"
	"github.com/ecowatch/air-quality-service/internal/observability"
)

// Warmer prefetches air-quality data for the whole registry so the first
// dashboard load after startup is served from cache. It goes through GetAll,
// which already paces upstream calls.
type Warmer struct {
	agg    *Aggregator
	logger *zap.Logger
}

// NewWarmer creates a Warmer over the given aggregator.
func NewWarmer(agg *Aggregator, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{agg: agg, logger: logger}
}

// Warm runs one full-registry prefetch. Returns an error when the run could
// not start at all; individual city failures only reduce the warmed count.
func (w *Warmer) Warm(ctx context.Context) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming air-quality cache", zap.Int("cities", cities.Count()))

	records, err := w.agg.GetAll(ctx)
	duration := time.Since(start)
	observability.CacheWarmingDurationSeconds.Observe(duration.Seconds())
	if err != nil {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("warm cache: %w", err)
	}

	missed := cities.Count() - len(records)
	if missed > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
	}
	w.logger.Info("cache warming complete",
		zap.Int("warmed", len(records)),
		zap.Int("missed", missed),
		zap.Duration("duration", duration))
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval
// until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, interval time.Duration) error {
	if err := w.Warm(ctx); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
