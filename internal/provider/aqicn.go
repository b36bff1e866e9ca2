package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ecowatch/air-quality-service/internal/cities"
	"github.com/ecowatch/air-quality-service/internal/models"
	"github.com/ecowatch/air-quality-service/internal/observability"
)

const aqicnName = "aqicn"

// AQICNClient fetches geo-feed air quality from the AQICN (WAQI) API. It is
// the wider-coverage fallback behind IQAir.
type AQICNClient struct {
	apiKey string
	apiURL string
	client *http.Client
}

// NewAQICNClient creates an AQICNClient. apiURL defaults to the public WAQI
// endpoint when empty.
func NewAQICNClient(apiKey, apiURL string, timeout time.Duration) (*AQICNClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("aqicn: %w", ErrMissingAPIKey)
	}
	if apiURL == "" {
		apiURL = "https://api.waqi.info"
	}
	return &AQICNClient{
		apiKey: apiKey,
		apiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

// flexInt decodes a JSON number or numeric string. AQICN stations report aqi
// either way; unparseable values decode to 0 rather than failing the whole
// payload.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(v)
	return nil
}

// aqicnPayload is the subset of the WAQI geo-feed response this service
// reads. Status must equal "ok"; anything else is a business-level failure
// even on HTTP 200.
type aqicnPayload struct {
	Status string `json:"status"`
	Data   struct {
		AQI  flexInt `json:"aqi"`
		IAQI map[string]struct {
			V float64 `json:"v"`
		} `json:"iaqi"`
		City struct {
			Name string `json:"name"`
		} `json:"city"`
		Time struct {
			ISO string `json:"iso"`
		} `json:"time"`
	} `json:"data"`
}

// Source implements Reader.
func (c *AQICNClient) Source() models.Source {
	return models.SourceAQICN
}

// Record implements Reader: one upstream call, envelope check, normalization.
func (c *AQICNClient) Record(ctx context.Context, city cities.City) (models.AirQualityRecord, error) {
	payload, err := c.fetch(ctx, city.Lat, city.Lon)
	if err != nil {
		return models.AirQualityRecord{}, err
	}
	return normalizeAQICN(city.ID, payload, time.Now()), nil
}

func (c *AQICNClient) fetch(ctx context.Context, lat, lon float64) (*aqicnPayload, error) {
	start := time.Now()

	// WAQI addresses geo feeds by path, not query: /feed/geo:<lat>;<lon>/
	endpoint := fmt.Sprintf("%s/feed/geo:%s;%s/?token=%s",
		c.apiURL,
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64),
		c.apiKey,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, &UpstreamError{Provider: aqicnName, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ObserveProviderCall(aqicnName, "error", time.Since(start))
		return nil, &UpstreamError{Provider: aqicnName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.ObserveProviderCall(aqicnName, "http_error", time.Since(start))
		return nil, &UpstreamError{Provider: aqicnName, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.ObserveProviderCall(aqicnName, "error", time.Since(start))
		return nil, &UpstreamError{Provider: aqicnName, Err: fmt.Errorf("read response body: %w", err)}
	}

	var payload aqicnPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		observability.ObserveProviderCall(aqicnName, "parse_error", time.Since(start))
		return nil, &UpstreamError{Provider: aqicnName, Err: fmt.Errorf("parse response: %w", err)}
	}

	if payload.Status != "ok" {
		observability.ObserveProviderCall(aqicnName, "envelope_error", time.Since(start))
		return nil, &UpstreamError{Provider: aqicnName, Message: "AQICN data not available"}
	}

	observability.ObserveProviderCall(aqicnName, "success", time.Since(start))
	return &payload, nil
}
