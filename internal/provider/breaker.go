package provider

import (
	"context"
	"errors"

	"github.com/ecowatch/air-quality-service/internal/circuitbreaker"
	"github.com/ecowatch/air-quality-service/internal/cities"
	"github.com/ecowatch/air-quality-service/internal/models"
)

// breakerReader wraps a Reader so repeated failures open a circuit and
// short-circuit further calls until the cooldown elapses. An open circuit
// reads as an upstream failure, which sends the aggregator on to the next
// provider; fallback semantics are unchanged.
type breakerReader struct {
	inner Reader
	cb    *circuitbreaker.CircuitBreaker
}

// WithBreaker decorates r with cb. A nil breaker returns r unchanged.
func WithBreaker(r Reader, cb *circuitbreaker.CircuitBreaker) Reader {
	if cb == nil {
		return r
	}
	return &breakerReader{inner: r, cb: cb}
}

func (b *breakerReader) Source() models.Source {
	return b.inner.Source()
}

func (b *breakerReader) Record(ctx context.Context, city cities.City) (models.AirQualityRecord, error) {
	var rec models.AirQualityRecord
	err := b.cb.Call(ctx, func() error {
		var callErr error
		rec, callErr = b.inner.Record(ctx, city)
		return callErr
	})
	if err != nil {
		var upstream *UpstreamError
		if !errors.As(err, &upstream) {
			err = &UpstreamError{Provider: string(b.inner.Source()), Err: err}
		}
		return models.AirQualityRecord{}, err
	}
	return rec, nil
}
