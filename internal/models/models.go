package models

import (
	"database/sql"
	"time"
)

// Reading is a snapshot of sensor state. It is replaced wholesale by the
// next inbound reading and never mutated after capture.
type Reading struct {
	TempC      float64         `json:"temp_c"`
	Humidity   float64         `json:"humidity"`
	PressurePa float64         `json:"pressure_pa"`
	UV         string          `json:"uv"` // "Low", "Moderate", "High", "VeryHigh", "Extreme"
	PrecipMM   sql.NullFloat64 `json:"-"`
	ObservedAt time.Time       `json:"observed_at"`
}

// PrecipOrZero returns the precipitation value with absence encoded as 0,
// which is what the inference model was trained on.
func (r Reading) PrecipOrZero() float64 {
	if r.PrecipMM.Valid {
		return r.PrecipMM.Float64
	}
	return 0
}

// ForecastResult is the parsed response from the inference process.
type ForecastResult struct {
	RainProbability float64   `json:"rain_probability"`
	FeatureVersion  string    `json:"feature_version"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// Record is one append-only row of reading + cloud cover + forecast.
// Rows are never updated or deleted; a new row is written only when it
// differs from the immediately preceding one.
type Record struct {
	ID              int64           `json:"id"`
	TempC           float64         `json:"temp_c"`
	Humidity        float64         `json:"humidity"`
	PressurePa      float64         `json:"pressure_pa"`
	UV              string          `json:"uv"`
	PrecipMM        sql.NullFloat64 `json:"precip_mm"`
	CloudCover      float64         `json:"cloud_cover"`
	RainProbability float64         `json:"rain_probability"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SameContent reports whether two records carry identical tracked fields,
// ignoring the surrogate id and creation timestamp. Comparison is exact,
// not tolerance-based.
func (r Record) SameContent(o Record) bool {
	return r.TempC == o.TempC &&
		r.Humidity == o.Humidity &&
		r.PressurePa == o.PressurePa &&
		r.UV == o.UV &&
		r.PrecipMM == o.PrecipMM &&
		r.CloudCover == o.CloudCover &&
		r.RainProbability == o.RainProbability
}
