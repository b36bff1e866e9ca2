package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ecowatch/air-quality-service/internal/cities"
	"github.com/ecowatch/air-quality-service/internal/models"
)

const iqairSuccessBody = `{
	"status": "success",
	"data": {
		"city": "Tashkent",
		"current": {
			"pollution": {
				"ts": "2025-01-15T08:00:00.000Z",
				"aqius": 161,
				"mainus": "p2"
			}
		}
	}
}`

func testCity() cities.City {
	return cities.City{ID: "tashkent", Lat: 41.2995, Lon: 69.2401}
}

// TestIQAirClient_Record_Success verifies the documented success envelope is
// fetched, parsed, and normalized into a canonical record.
func TestIQAirClient_Record_Success(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"lat": r.URL.Query().Get("lat"),
			"lon": r.URL.Query().Get("lon"),
			"key": r.URL.Query().Get("key"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(iqairSuccessBody))
	}))
	defer server.Close()

	client, err := NewIQAirClient("test-key", server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewIQAirClient() error = %v", err)
	}

	rec, err := client.Record(context.Background(), testCity())
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if gotQuery["lat"] != "41.2995" || gotQuery["lon"] != "69.2401" || gotQuery["key"] != "test-key" {
		t.Errorf("request query = %v, want coordinates and key", gotQuery)
	}
	if rec.CityID != "tashkent" {
		t.Errorf("CityID = %q, want tashkent", rec.CityID)
	}
	if rec.AQI != 161 {
		t.Errorf("AQI = %d, want 161", rec.AQI)
	}
	if rec.Status != models.ClassifyAQI(161) {
		t.Errorf("Status = %q, inconsistent with ClassifyAQI(%d)", rec.Status, rec.AQI)
	}
	if rec.Source != models.SourceIQAir {
		t.Errorf("Source = %q, want iqair", rec.Source)
	}
	if rec.Station != "Tashkent" {
		t.Errorf("Station = %q, want Tashkent", rec.Station)
	}
	if rec.Timestamp != "2025-01-15T08:00:00.000Z" {
		t.Errorf("Timestamp = %q, want provider timestamp", rec.Timestamp)
	}
	if rec.PM25 == nil || *rec.PM25 != 161 {
		t.Errorf("PM25 = %v, want AQI mirrored for dominant p2", rec.PM25)
	}
}

// TestIQAirClient_Record_Failures verifies that transport failures, non-2xx
// responses, and failure envelopes on HTTP 200 all yield an *UpstreamError.
func TestIQAirClient_Record_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "http 429",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
		},
		{
			name: "failure envelope on 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"fail","data":{"message":"api key expired"}}`))
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{not json`))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			client, err := NewIQAirClient("test-key", server.URL, 2*time.Second)
			if err != nil {
				t.Fatalf("NewIQAirClient() error = %v", err)
			}

			_, err = client.Record(context.Background(), testCity())
			if err == nil {
				t.Fatal("Record() error = nil, want *UpstreamError")
			}
			var upstream *UpstreamError
			if !errors.As(err, &upstream) {
				t.Fatalf("Record() error = %v, want *UpstreamError", err)
			}
			if upstream.Provider != "iqair" {
				t.Errorf("Provider = %q, want iqair", upstream.Provider)
			}
		})
	}
}

// TestIQAirClient_Record_Timeout verifies a hung upstream is cut off by the
// client timeout and reported as an upstream error.
func TestIQAirClient_Record_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(iqairSuccessBody))
	}))
	defer server.Close()

	client, err := NewIQAirClient("test-key", server.URL, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewIQAirClient() error = %v", err)
	}

	_, err = client.Record(context.Background(), testCity())
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Record() error = %v, want *UpstreamError on timeout", err)
	}
}

// TestNewIQAirClient_RequiresKey verifies the constructor rejects an empty key.
func TestNewIQAirClient_RequiresKey(t *testing.T) {
	if _, err := NewIQAirClient("", "", time.Second); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("NewIQAirClient(\"\") error = %v, want ErrMissingAPIKey", err)
	}
}
