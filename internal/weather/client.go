package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ecowatch/air-quality-service/internal/cities"
	"github.com/ecowatch/air-quality-service/internal/models"
	"github.com/ecowatch/air-quality-service/internal/observability"
)

// Client fetches current weather and UV readings for a registered city.
type Client interface {
	Current(ctx context.Context, city cities.City) (models.WeatherData, error)
	UV(ctx context.Context, city cities.City) (models.UVData, error)
}

var (
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
)

// OpenWeatherClient is the single-provider weather fetcher. Unlike the
// air-quality chain there is no fallback and no cache; failed lookups
// surface to the caller.
type OpenWeatherClient struct {
	apiKey         string
	baseURL        string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// NewOpenWeatherClient creates an OpenWeatherClient with default retry
// settings. baseURL defaults to the public data/2.5 API root when empty.
func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithRetry(apiKey, baseURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

// NewOpenWeatherClientWithRetry creates an OpenWeatherClient with explicit
// retry parameters.
func NewOpenWeatherClientWithRetry(apiKey, baseURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if baseURL == "" {
		baseURL = "https://api.openweathermap.org/data/2.5"
	}
	if retryAttempts <= 0 {
		retryAttempts = 1
	}
	return &OpenWeatherClient{
		apiKey:         apiKey,
		baseURL:        strings.TrimRight(baseURL, "/"),
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client:         &http.Client{Timeout: timeout},
	}, nil
}

type currentWeatherResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
		Pressure int     `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
}

type oneCallResponse struct {
	Current struct {
		UVI float64 `json:"uvi"`
	} `json:"current"`
}

// Current fetches the current weather for city, retrying transient upstream
// failures with exponential backoff.
func (c *OpenWeatherClient) Current(ctx context.Context, city cities.City) (models.WeatherData, error) {
	var apiResp currentWeatherResponse
	params := url.Values{}
	params.Set("units", "metric")
	if err := c.getWithRetry(ctx, "/weather", city, params, &apiResp); err != nil {
		return models.WeatherData{}, err
	}

	data := models.WeatherData{
		CityID:      city.ID,
		Temperature: models.Round1(apiResp.Main.Temp),
		Humidity:    apiResp.Main.Humidity,
		Wind:        models.Round1(apiResp.Wind.Speed),
		Pressure:    apiResp.Main.Pressure,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if len(apiResp.Weather) > 0 {
		data.Description = apiResp.Weather[0].Description
		data.Icon = apiResp.Weather[0].Icon
	}
	return data, nil
}

// UV fetches the current UV index for city via the One Call API.
func (c *OpenWeatherClient) UV(ctx context.Context, city cities.City) (models.UVData, error) {
	var apiResp oneCallResponse
	params := url.Values{}
	params.Set("exclude", "minutely,hourly,daily,alerts")
	if err := c.getWithRetry(ctx, "/onecall", city, params, &apiResp); err != nil {
		return models.UVData{}, err
	}

	return models.UVData{
		CityID:    city.ID,
		UV:        models.Round1(apiResp.Current.UVI),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// getWithRetry performs a GET against path, decoding the JSON body into out.
// Non-retryable errors are returned immediately.
func (c *OpenWeatherClient) getWithRetry(ctx context.Context, path string, city cities.City, params url.Values, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.callAPI(ctx, path, city, params, out)
		if err == nil {
			return nil
		}

		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, path string, city cities.City, params url.Values, out interface{}) error {
	start := time.Now()

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("lat", strconv.FormatFloat(city.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(city.Lon, 'f', -1, 64))
	q.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(reqCtx, "GET", c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "connection")
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: key rejected", ErrInvalidAPIKey)
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}
