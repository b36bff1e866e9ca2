package weather

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ecowatch/air-quality-service/internal/cities"
	"github.com/ecowatch/air-quality-service/internal/models"
)

// Service fans weather lookups out across the city registry. Weather calls
// have no fallback chain to pace, so the bulk fetch runs concurrently,
// unlike the air-quality aggregator.
type Service struct {
	client Client
	logger *zap.Logger
}

// NewService creates a Service over the given weather client.
func NewService(client Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, logger: logger}
}

// Current fetches the current weather for one registered city.
func (s *Service) Current(ctx context.Context, city cities.City) (models.WeatherData, error) {
	return s.client.Current(ctx, city)
}

// UV fetches the current UV index for one registered city.
func (s *Service) UV(ctx context.Context, city cities.City) (models.UVData, error) {
	return s.client.UV(ctx, city)
}

// All fetches current weather for every registered city concurrently.
// Failed cities are dropped from the result; registry order is preserved
// for the rest.
func (s *Service) All(ctx context.Context) []models.WeatherData {
	all := cities.All()
	results := make([]*models.WeatherData, len(all))

	var wg sync.WaitGroup
	for i, city := range all {
		wg.Add(1)
		go func(i int, city cities.City) {
			defer wg.Done()
			data, err := s.client.Current(ctx, city)
			if err != nil {
				s.logger.Debug("weather lookup failed", zap.String("city", city.ID), zap.Error(err))
				return
			}
			results[i] = &data
		}(i, city)
	}
	wg.Wait()

	out := make([]models.WeatherData, 0, len(all))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
