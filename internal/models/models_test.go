package models

import (
	"encoding/json"
	"strings"
	"testing"
)

// TestClassifyAQI verifies the breakpoint table, including the inclusive
// boundaries on each tier.
func TestClassifyAQI(t *testing.T) {
	tests := []struct {
		aqi  int
		want Status
	}{
		{0, StatusGood},
		{25, StatusGood},
		{50, StatusGood},
		{51, StatusModerate},
		{100, StatusModerate},
		{101, StatusUnhealthy},
		{150, StatusUnhealthy},
		{151, StatusPoor},
		{200, StatusPoor},
		{201, StatusHazardous},
		{350, StatusHazardous},
		{500, StatusHazardous},
	}
	for _, tc := range tests {
		if got := ClassifyAQI(tc.aqi); got != tc.want {
			t.Errorf("ClassifyAQI(%d) = %q, want %q", tc.aqi, got, tc.want)
		}
	}
}

// TestClassifyAQI_TotalAndMonotone verifies that every non-negative AQI maps
// to exactly one of the five statuses and that severity never decreases as
// the AQI increases.
func TestClassifyAQI_TotalAndMonotone(t *testing.T) {
	severity := map[Status]int{
		StatusGood:      0,
		StatusModerate:  1,
		StatusUnhealthy: 2,
		StatusPoor:      3,
		StatusHazardous: 4,
	}

	prev := -1
	for aqi := 0; aqi <= 600; aqi++ {
		s := ClassifyAQI(aqi)
		rank, ok := severity[s]
		if !ok {
			t.Fatalf("ClassifyAQI(%d) = %q, not one of the five statuses", aqi, s)
		}
		if rank < prev {
			t.Fatalf("ClassifyAQI(%d) = %q regresses to a better status", aqi, s)
		}
		prev = rank
	}
}

// TestAirQualityRecord_JSONOmitsMissingPollutants verifies that absent
// pollutant readings are omitted from JSON rather than serialized as zero.
// Consumers treat omission as "unknown", not a reading of 0.
func TestAirQualityRecord_JSONOmitsMissingPollutants(t *testing.T) {
	pm25 := 42.0
	rec := AirQualityRecord{
		CityID:    "tashkent",
		AQI:       42,
		Status:    StatusGood,
		PM25:      &pm25,
		Source:    SourceAQICN,
		Timestamp: "2025-01-01T00:00:00Z",
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	body := string(raw)

	if !strings.Contains(body, `"pm25":42`) {
		t.Errorf("expected pm25 in JSON, got %s", body)
	}
	for _, absent := range []string{"pm10", `"o3"`, "no2", "so2", `"co"`, "station"} {
		if strings.Contains(body, absent) {
			t.Errorf("expected %s to be omitted, got %s", absent, body)
		}
	}
}

// TestRound1 verifies one-decimal rounding used by the weather mapping.
func TestRound1(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{12.34, 12.3},
		{12.36, 12.4},
		{-3.27, -3.3},
		{0, 0},
	}
	for _, tc := range tests {
		if got := Round1(tc.in); got != tc.want {
			t.Errorf("Round1(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
