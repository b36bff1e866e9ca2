package provider

import (
	"time"

	"github.com/ecowatch/air-quality-service/internal/models"
)

// normalizeIQAir converts an IQAir payload into the canonical record shape.
// now supplies the timestamp fallback when the provider omits one.
func normalizeIQAir(cityID string, p *iqairPayload, now time.Time) models.AirQualityRecord {
	pollution := p.Data.Current.Pollution
	aqi := pollution.AQIUS

	rec := models.AirQualityRecord{
		CityID:    cityID,
		AQI:       aqi,
		Status:    models.ClassifyAQI(aqi),
		Station:   p.Data.City,
		Source:    models.SourceIQAir,
		Timestamp: pollution.TS,
	}
	if rec.Timestamp == "" {
		rec.Timestamp = now.UTC().Format(time.RFC3339)
	}

	// IQAir reports only the dominant pollutant, not concentrations. When
	// PM2.5 is dominant ("p2") the integration has always mirrored the AQI
	// value into pm25. That conflates an index with a concentration, but
	// downstream consumers depend on the field being populated this way.
	if pollution.MainUS == "p2" {
		v := float64(aqi)
		rec.PM25 = &v
	}
	return rec
}

// normalizeAQICN converts a WAQI geo-feed payload into the canonical record
// shape. Individual pollutant sub-indexes are optional per station.
func normalizeAQICN(cityID string, p *aqicnPayload, now time.Time) models.AirQualityRecord {
	aqi := int(p.Data.AQI)

	rec := models.AirQualityRecord{
		CityID:    cityID,
		AQI:       aqi,
		Status:    models.ClassifyAQI(aqi),
		Station:   p.Data.City.Name,
		Source:    models.SourceAQICN,
		Timestamp: p.Data.Time.ISO,
	}
	if rec.Timestamp == "" {
		rec.Timestamp = now.UTC().Format(time.RFC3339)
	}

	rec.PM25 = pollutant(p, "pm25")
	rec.PM10 = pollutant(p, "pm10")
	rec.O3 = pollutant(p, "o3")
	rec.NO2 = pollutant(p, "no2")
	rec.SO2 = pollutant(p, "so2")
	rec.CO = pollutant(p, "co")
	return rec
}

func pollutant(p *aqicnPayload, key string) *float64 {
	reading, ok := p.Data.IAQI[key]
	if !ok {
		return nil
	}
	v := reading.V
	return &v
}
