package aggregator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ecowatch/air-quality-service/internal/cache"
	"github.com/ecowatch/air-quality-service/internal/cities"
	"github.com/ecowatch/air-quality-service/internal/models"
	"github.com/ecowatch/air-quality-service/internal/provider"
)

// gatedReader blocks each Record call until release is closed, so tests can
// hold a fetch in flight while more callers arrive.
type gatedReader struct {
	src     models.Source
	release chan struct{}
	started chan struct{}
	calls   atomic.Int32
	err     error
}

func (g *gatedReader) Source() models.Source { return g.src }

func (g *gatedReader) Record(ctx context.Context, city cities.City) (models.AirQualityRecord, error) {
	if g.calls.Add(1) == 1 && g.started != nil {
		close(g.started)
	}
	<-g.release
	if g.err != nil {
		return models.AirQualityRecord{}, g.err
	}
	return models.AirQualityRecord{
		CityID:    city.ID,
		AQI:       88,
		Status:    models.StatusModerate,
		Source:    g.src,
		Timestamp: "2025-01-15T09:00:00Z",
	}, nil
}

// TestAggregator_Coalescing_SharesOneFetch verifies two concurrent misses for
// the same city result in a single provider call, with both callers getting
// the record.
func TestAggregator_Coalescing_SharesOneFetch(t *testing.T) {
	reader := &gatedReader{src: models.SourceIQAir, release: make(chan struct{}), started: make(chan struct{})}
	agg := New(cache.NewInMemoryCache(), []provider.Reader{reader}, time.Minute, &countingPacer{}, zap.NewNop())
	agg.EnableCoalescing(5 * time.Second)
	ctx := context.Background()

	type result struct {
		rec models.AirQualityRecord
		err error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec, err := agg.Get(ctx, "tashkent")
		results <- result{rec, err}
	}()

	// Second caller arrives while the first fetch is held in flight.
	<-reader.started
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec, err := agg.Get(ctx, "tashkent")
		results <- result{rec, err}
	}()

	time.Sleep(20 * time.Millisecond)
	close(reader.release)
	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			t.Fatalf("Get returned error: %v", res.err)
		}
		if res.rec.CityID != "tashkent" || res.rec.AQI != 88 {
			t.Errorf("record = %+v", res.rec)
		}
	}
	if got := reader.calls.Load(); got != 1 {
		t.Errorf("provider called %d times, want 1", got)
	}
}

// TestAggregator_Coalescing_ErrorShared verifies a failed shared fetch
// propagates the error to every waiter.
func TestAggregator_Coalescing_ErrorShared(t *testing.T) {
	reader := &gatedReader{
		src:     models.SourceIQAir,
		release: make(chan struct{}),
		started: make(chan struct{}),
		err:     &provider.UpstreamError{Provider: "iqair", StatusCode: 502, Message: "bad gateway"},
	}
	agg := New(cache.NewInMemoryCache(), []provider.Reader{reader}, time.Minute, &countingPacer{}, zap.NewNop())
	agg.EnableCoalescing(5 * time.Second)
	ctx := context.Background()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := agg.Get(ctx, "bukhara")
		errs <- err
	}()
	<-reader.started
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := agg.Get(ctx, "bukhara")
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	close(reader.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, ErrNoProviderAvailable) {
			t.Errorf("err = %v, want ErrNoProviderAvailable", err)
		}
	}
	if got := reader.calls.Load(); got != 1 {
		t.Errorf("provider called %d times, want 1", got)
	}
}

// TestCoalescer_DifferentKeysIndependent verifies flights for different keys
// never wait on each other.
func TestCoalescer_DifferentKeysIndependent(t *testing.T) {
	c := newCoalescer(5 * time.Second)
	var calls atomic.Int32

	var wg sync.WaitGroup
	for _, key := range []string{"tashkent", "samarkand", "nukus"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			rec, shared, err := c.Do(context.Background(), key, func() (models.AirQualityRecord, error) {
				calls.Add(1)
				return models.AirQualityRecord{CityID: key}, nil
			})
			if err != nil {
				t.Errorf("%s: Do returned error: %v", key, err)
			}
			if shared {
				t.Errorf("%s: shared = true for sole caller", key)
			}
			if rec.CityID != key {
				t.Errorf("rec.CityID = %q, want %q", rec.CityID, key)
			}
		}(key)
	}
	wg.Wait()

	if got := calls.Load(); got != 3 {
		t.Errorf("fn executed %d times, want 3", got)
	}
}

// TestCoalescer_WaiterTimeout verifies a waiter gives up after the coalescer
// timeout rather than blocking on a stuck flight.
func TestCoalescer_WaiterTimeout(t *testing.T) {
	c := newCoalescer(30 * time.Millisecond)
	release := make(chan struct{})
	started := make(chan struct{})
	defer close(release)

	go func() {
		c.Do(context.Background(), "fergana", func() (models.AirQualityRecord, error) {
			close(started)
			<-release
			return models.AirQualityRecord{}, nil
		})
	}()
	<-started

	_, shared, err := c.Do(context.Background(), "fergana", func() (models.AirQualityRecord, error) {
		return models.AirQualityRecord{}, nil
	})
	if !shared {
		t.Error("shared = false, want waiter path")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

// TestAggregator_Coalescing_CacheHitSkipsFlight verifies a cached record
// still short-circuits ahead of the coalescer.
func TestAggregator_Coalescing_CacheHitSkipsFlight(t *testing.T) {
	primary := &fakeReader{src: models.SourceIQAir}
	agg := New(cache.NewInMemoryCache(), []provider.Reader{primary}, time.Minute, &countingPacer{}, zap.NewNop())
	agg.EnableCoalescing(5 * time.Second)
	ctx := context.Background()

	if _, err := agg.Get(ctx, "namangan"); err != nil {
		t.Fatalf("first Get returned error: %v", err)
	}
	if _, err := agg.Get(ctx, "namangan"); err != nil {
		t.Fatalf("second Get returned error: %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("provider called %d times, want 1", primary.calls)
	}
}
