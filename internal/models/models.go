package models

import "math"

// Source identifies which upstream provider produced a record.
type Source string

const (
	SourceIQAir Source = "iqair"
	SourceAQICN Source = "aqicn"
)

// Status buckets an AQI value on the US EPA scale.
type Status string

const (
	StatusGood      Status = "good"
	StatusModerate  Status = "moderate"
	StatusUnhealthy Status = "unhealthy"
	StatusPoor      Status = "poor"
	StatusHazardous Status = "hazardous"
)

// ClassifyAQI maps an AQI value to its status bucket. Breakpoints are
// inclusive on the lower tier; everything above 200 is hazardous. All
// normalized records go through this function, regardless of provider.
func ClassifyAQI(aqi int) Status {
	switch {
	case aqi <= 50:
		return StatusGood
	case aqi <= 100:
		return StatusModerate
	case aqi <= 150:
		return StatusUnhealthy
	case aqi <= 200:
		return StatusPoor
	default:
		return StatusHazardous
	}
}

// AirQualityRecord is the canonical provider-independent reading served to
// clients. Pollutant sub-readings are pointers because their presence is
// provider-dependent; omitted values must stay omitted in JSON rather than
// rendering as zero.
type AirQualityRecord struct {
	CityID    string   `json:"cityId"`
	AQI       int      `json:"aqi"`
	Status    Status   `json:"status"`
	PM25      *float64 `json:"pm25,omitempty"`
	PM10      *float64 `json:"pm10,omitempty"`
	O3        *float64 `json:"o3,omitempty"`
	NO2       *float64 `json:"no2,omitempty"`
	SO2       *float64 `json:"so2,omitempty"`
	CO        *float64 `json:"co,omitempty"`
	Station   string   `json:"station,omitempty"`
	Source    Source   `json:"source"`
	Timestamp string   `json:"timestamp"`
}

// WeatherData is the response shape for the weather endpoints.
type WeatherData struct {
	CityID      string  `json:"cityId"`
	Temperature float64 `json:"temperature"`
	Humidity    int     `json:"humidity"`
	Wind        float64 `json:"wind"`
	Pressure    int     `json:"pressure"`
	Description string  `json:"description,omitempty"`
	Icon        string  `json:"icon,omitempty"`
	Timestamp   string  `json:"timestamp"`
}

// UVData is the response shape for the UV index endpoint.
type UVData struct {
	CityID    string  `json:"cityId"`
	UV        float64 `json:"uv"`
	Timestamp string  `json:"timestamp"`
}

// Round1 rounds to one decimal place. Weather values are rounded before they
// leave the service so the JSON matches what the dashboard expects.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
