package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ecowatch/air-quality-service/internal/cities"
	"github.com/ecowatch/air-quality-service/internal/models"
	"github.com/ecowatch/air-quality-service/internal/observability"
)

// ErrMissingAPIKey is returned by client constructors when no key is supplied.
// Callers decide whether that disables the provider or aborts startup.
var ErrMissingAPIKey = errors.New("API key is required")

const iqairName = "iqair"

// IQAirClient fetches nearest-city air quality from the IQAir (AirVisual)
// API. It performs one request per call with a bounded timeout and no
// retries.
type IQAirClient struct {
	apiKey string
	apiURL string
	client *http.Client
}

// NewIQAirClient creates an IQAirClient. apiURL defaults to the public
// nearest_city endpoint when empty.
func NewIQAirClient(apiKey, apiURL string, timeout time.Duration) (*IQAirClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("iqair: %w", ErrMissingAPIKey)
	}
	if apiURL == "" {
		apiURL = "https://api.airvisual.com/v2/nearest_city"
	}
	return &IQAirClient{
		apiKey: apiKey,
		apiURL: apiURL,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// iqairPayload is the subset of the IQAir response envelope this service
// reads. Status must equal "success"; anything else is a business-level
// failure even on HTTP 200.
type iqairPayload struct {
	Status string `json:"status"`
	Data   struct {
		City    string `json:"city"`
		Message string `json:"message"`
		Current struct {
			Pollution struct {
				TS     string `json:"ts"`
				AQIUS  int    `json:"aqius"`
				MainUS string `json:"mainus"`
			} `json:"pollution"`
		} `json:"current"`
	} `json:"data"`
}

// Source implements Reader.
func (c *IQAirClient) Source() models.Source {
	return models.SourceIQAir
}

// Record implements Reader: one upstream call, envelope check, normalization.
func (c *IQAirClient) Record(ctx context.Context, city cities.City) (models.AirQualityRecord, error) {
	payload, err := c.fetch(ctx, city.Lat, city.Lon)
	if err != nil {
		return models.AirQualityRecord{}, err
	}
	return normalizeIQAir(city.ID, payload, time.Now()), nil
}

func (c *IQAirClient) fetch(ctx context.Context, lat, lon float64) (*iqairPayload, error) {
	start := time.Now()

	req, err := c.buildRequest(ctx, lat, lon)
	if err != nil {
		return nil, &UpstreamError{Provider: iqairName, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ObserveProviderCall(iqairName, "error", time.Since(start))
		return nil, &UpstreamError{Provider: iqairName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.ObserveProviderCall(iqairName, "http_error", time.Since(start))
		return nil, &UpstreamError{Provider: iqairName, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.ObserveProviderCall(iqairName, "error", time.Since(start))
		return nil, &UpstreamError{Provider: iqairName, Err: fmt.Errorf("read response body: %w", err)}
	}

	var payload iqairPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		observability.ObserveProviderCall(iqairName, "parse_error", time.Since(start))
		return nil, &UpstreamError{Provider: iqairName, Err: fmt.Errorf("parse response: %w", err)}
	}

	if payload.Status != "success" {
		observability.ObserveProviderCall(iqairName, "envelope_error", time.Since(start))
		msg := payload.Data.Message
		if msg == "" {
			msg = "IQAir API error"
		}
		return nil, &UpstreamError{Provider: iqairName, Message: msg}
	}

	observability.ObserveProviderCall(iqairName, "success", time.Since(start))
	return &payload, nil
}

func (c *IQAirClient) buildRequest(ctx context.Context, lat, lon float64) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("key", c.apiKey)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}
