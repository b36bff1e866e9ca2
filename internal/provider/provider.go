package provider

import (
	"context"

	"github.com/ecowatch/air-quality-service/internal/cities"
	"github.com/ecowatch/air-quality-service/internal/models"
)

// Reader is one upstream air-quality source the aggregator can consult.
// Implementations perform a single request per call and return a normalized
// record; retries and fallbacks belong to the aggregator.
type Reader interface {
	Source() models.Source
	Record(ctx context.Context, city cities.City) (models.AirQualityRecord, error)
}
